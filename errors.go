package radioedit

import (
	"errors"
	"fmt"

	"github.com/yirzhou/radioedit/audio"
)

var (
	// ErrJobNotFound is returned for ids the store has never issued.
	ErrJobNotFound = errors.New("job not found")

	// ErrTransitionRejected is returned when a job is not in one of the
	// expected states, or the requested edge is not part of the state machine.
	ErrTransitionRejected = errors.New("transition rejected")

	// ErrQueueClosed is returned by Enqueue and Dequeue after Close.
	ErrQueueClosed = errors.New("queue closed")

	// ErrOutputNotFound is returned when an output name does not belong to a done job.
	ErrOutputNotFound = errors.New("output not found")

	// ErrCanceled is what the pipeline reports when it observes a cancel
	// request at a checkpoint.
	ErrCanceled = audio.ErrCanceled
)

// ValidationError reports malformed submission parameters. No job is
// created when Submit returns one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
