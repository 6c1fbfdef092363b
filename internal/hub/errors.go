package hub

import "errors"

// Registration and runtime errors. Compare with errors.Is; returned errors
// may wrap these with context.
var (
	ErrDescriptorInvalid = errors.New("hub: descriptor invalid")
	ErrAlreadyRegistered = errors.New("hub: sensor type already registered")
	ErrAlreadySubscribed = errors.New("hub: result type already subscribed")
	ErrNoMoreHandles     = errors.New("hub: no free handles")
	ErrNotRegistered     = errors.New("hub: sensor not registered")
	ErrNotSubscribed     = errors.New("hub: result not subscribed")
	ErrUnknownRequest    = errors.New("hub: unknown request")
	ErrInvalidHandle     = errors.New("hub: invalid handle")
	ErrNullPointer       = errors.New("hub: nil argument")
	ErrQueueFull         = errors.New("hub: queue full, oldest sample dropped")
)

// Status is the outcome of one processing step.
type Status int

const (
	// StatusOK means an entry was processed and more are pending.
	StatusOK Status = iota
	// StatusIdle means the queue is empty.
	StatusIdle
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusIdle:
		return "idle"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
