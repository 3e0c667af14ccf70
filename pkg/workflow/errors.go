package workflow

import (
	"errors"
	"fmt"

	"github.com/chicogong/ytagents/pkg/schemas"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPrecondition      = errors.New("precondition failed")
	ErrInvalidPayload    = errors.New("payload does not belong to step")
	ErrWorkflowClosed    = errors.New("workflow already uploaded")
	ErrEmptyTopic        = errors.New("topic is required")
)

// NotFoundError reports an unknown workflow or step
type NotFoundError struct {
	Kind string // "workflow" or "step"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports a rule violation; the workflow is left unchanged
type InvalidTransitionError struct {
	Step   schemas.StepName
	From   schemas.StepStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s step %s in status %s", e.Action, e.Step, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// PreconditionError names the first gating step that is not approved
type PreconditionError struct {
	Step   schemas.StepName
	Status schemas.StepStatus
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("step %s must be approved (is %s)", e.Step, e.Status)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }
