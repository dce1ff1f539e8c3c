package brainstorm

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrNoQuestion        = errors.New("no question installed")
	ErrIdeaIndex         = errors.New("idea index out of range")
	ErrNotAccepting      = errors.New("not accepting this message in the current stage")
	ErrQuestionMismatch  = errors.New("message belongs to another question")
	ErrInvalidBallot     = errors.New("invalid ballot")
	ErrAlreadyVoted      = errors.New("already voted in this round")
	ErrDuplicate         = errors.New("duplicate relay delivery")
	ErrClosed            = errors.New("brainstorm actor closed")
)

// TransitionError reports a rejected stage change.
type TransitionError struct {
	From Stage
	To   Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
