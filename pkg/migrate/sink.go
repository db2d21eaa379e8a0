// Package migrate copies archived coverage reports into a separate
// persistence layer and optionally retires them from the archive.
package migrate

import (
	"context"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
)

// Record is one archived day handed to a Sink.
type Record struct {
	Day  string
	Meta coverage.MetaReport
}

// Connector is the lifecycle half of a Sink. Implementations follow the
// Uninitialized → Ready → Connected ⇄ Disconnected lifecycle and reject
// calls made in the wrong state.
type Connector interface {
	State() State
	// Configure prepares the sink. Uninitialized → Ready.
	Configure() error
	// Connect opens the sink for writing. Ready or Disconnected → Connected.
	Connect(ctx context.Context) error
	// Disconnect releases the sink. Connected → Disconnected.
	Disconnect() error
}

// RecordWriter stores records keyed by day.
type RecordWriter interface {
	// Put stores rec, replacing a record of the same day.
	Put(ctx context.Context, rec Record) error
	// Contains reports whether the day is already stored.
	Contains(ctx context.Context, day string) (bool, error)
}

// Sink receives migrated records.
type Sink interface {
	Connector
	RecordWriter
}
