package archive

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/covarchive/pkg/codec"
)

// ErrNoReport is returned when no archived report satisfies a query.
var ErrNoReport = errors.New("no archived report")

// ErrEntryNotFound is returned when a day has no archive entry.
var ErrEntryNotFound = errors.New("archive entry not found")

// Entry is one archived day. Kind is derived from the file extension and
// decides the decode path.
type Entry struct {
	Day  string
	Date time.Time
	Kind codec.Kind
	Path string
	Size int64
}

// Compressed reports whether the entry is stored compressed.
func (e Entry) Compressed() bool {
	return e.Kind.Compressed()
}

// Filename returns the base name of the backing file.
func (e Entry) Filename() string {
	return filepath.Base(e.Path)
}

// DecodeError reports an archive entry that could not be read, decompressed
// or parsed. It always names the offending file.
type DecodeError struct {
	Filename string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode archive entry %s: %v", e.Filename, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeErrors extracts every *DecodeError from err, which may be a joined
// error as returned by AllReports.
func DecodeErrors(err error) []*DecodeError {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*DecodeError
		for _, inner := range joined.Unwrap() {
			out = append(out, DecodeErrors(inner)...)
		}

		return out
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return []*DecodeError{de}
	}

	return nil
}
