package ringpipe

import "fmt"

var (
	// ErrTimeout is returned when the deadline passed before any byte moved.
	ErrTimeout = fmt.Errorf("timeout")
	// ErrClosed is returned once the pipe has been closed and the call
	// could make no progress.
	ErrClosed = fmt.Errorf("pipe is closed")
	// ErrCancelled is returned to calls interrupted by Reset.
	ErrCancelled = fmt.Errorf("pipe operation cancelled by reset")
	// ErrInvalidArgument is returned for a minimum transfer outside [0, len(data)].
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
