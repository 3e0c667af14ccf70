package pipeline

import (
	"errors"
	"fmt"

	"github.com/chicogong/ytagents/pkg/schemas"
)

var (
	// ErrStageFailed halts a strict run at the first non-Ok stage
	ErrStageFailed = errors.New("stage failed")

	// ErrRejected is returned when the gate rejects a step
	ErrRejected = errors.New("step rejected")

	// ErrNoTopic is returned when no topic was given and trend detection found none
	ErrNoTopic = errors.New("no topic")
)

// StageError wraps ErrStageFailed with the failing stage and its reason
type StageError struct {
	Stage   schemas.StageName
	Outcome schemas.Outcome
	Reason  string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s %s: %s", e.Stage, e.Outcome, e.Reason)
}

func (e *StageError) Is(target error) bool { return target == ErrStageFailed }
