package migrate

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrInvalidTransition is returned when an event is not allowed in the
// current connection state.
var ErrInvalidTransition = errors.New("invalid sink state transition")

// ErrInvalidState is returned when an operation runs in the wrong state.
var ErrInvalidState = errors.New("sink is not in a usable state")

// State is the connection state of a Sink.
type State int

// Sink states.
const (
	StateUninitialized State = iota
	StateReady
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a state transition.
type Event string

// Sink events.
const (
	EventConfigure  Event = "configure"
	EventConnect    Event = "connect"
	EventDisconnect Event = "disconnect"
)

// transitions is the complete table; anything missing is invalid.
var transitions = map[State]map[Event]State{
	StateUninitialized: {EventConfigure: StateReady},
	StateReady:         {EventConnect: StateConnected},
	StateConnected:     {EventDisconnect: StateDisconnected},
	StateDisconnected:  {EventConnect: StateConnected},
}

// Next returns the state reached from s on ev.
func Next(s State, ev Event) (State, error) {
	next, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
	}

	return next, nil
}

// Lifecycle tracks one sink's state. Safe for concurrent use.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Fire applies ev. When apply is non-nil it runs before the state changes
// and an error from it leaves the state untouched.
func (l *Lifecycle) Fire(ev Event, apply func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := Next(l.state, ev)
	if err != nil {
		return err
	}

	if apply != nil {
		applyErr := apply()
		if applyErr != nil {
			return applyErr
		}
	}

	l.state = next

	return nil
}

// Expect fails unless the current state is one of allowed.
func (l *Lifecycle) Expect(op string, allowed ...State) error {
	current := l.State()
	if slices.Contains(allowed, current) {
		return nil
	}

	return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, current)
}
