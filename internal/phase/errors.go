package phase

import (
	"errors"
	"fmt"

	"github.com/roach88/brandquest/internal/mission"
)

// ErrInvalidOutput is wrapped by GenerationError when an invoker returns
// output that does not fit the stage kind.
var ErrInvalidOutput = errors.New("invalid stage output")

// ValidationError rejects user input. The machine state is unchanged.
type ValidationError struct {
	Mission mission.ID
	Stage   string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	where := e.Mission.Key()
	if e.Stage != "" {
		where += "/" + e.Stage
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: field %s: %s", where, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// GenerationError reports a failed generation stage or final build.
// The machine is in Error(Stage) and the stage may be run again.
type GenerationError struct {
	Mission   mission.ID
	Stage     string
	Err       error
	Retryable bool
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: stage %s failed: %v", e.Mission.Key(), e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// TransitionError reports an action that is not allowed in the current phase.
type TransitionError struct {
	Mission mission.ID
	Action  string
	From    Phase
	Detail  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: cannot %s from %s", e.Mission.Key(), e.Action, e.From)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRetryable reports whether err is a GenerationError that may be retried.
func IsRetryable(err error) bool {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// IsTransition reports whether err is a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
