package pipeline

import (
	"context"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// Decision is a gate verdict on a completed step
type Decision int

const (
	Approve Decision = iota
	Reject
	// Defer pauses the run; the step waits for a decision through the API
	Defer
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	}
	return "defer"
}

// Gate reviews each completed step before later stages may run
type Gate interface {
	Review(ctx context.Context, workflowID string, step schemas.StepName, result schemas.StageResult) Decision
}

// AutoGate approves real results and, when ApproveFallbacks is set, placeholders
type AutoGate struct {
	ApproveFallbacks bool
}

func (g AutoGate) Review(_ context.Context, _ string, _ schemas.StepName, result schemas.StageResult) Decision {
	switch result.Outcome {
	case schemas.OutcomeOK:
		return Approve
	case schemas.OutcomeFallback:
		if g.ApproveFallbacks {
			return Approve
		}
	}
	return Defer
}

// ManualGate defers every step to a human reviewer
type ManualGate struct{}

func (ManualGate) Review(context.Context, string, schemas.StepName, schemas.StageResult) Decision {
	return Defer
}

// GateFunc adapts a function to Gate
type GateFunc func(ctx context.Context, workflowID string, step schemas.StepName, result schemas.StageResult) Decision

func (f GateFunc) Review(ctx context.Context, workflowID string, step schemas.StepName, result schemas.StageResult) Decision {
	return f(ctx, workflowID, step, result)
}
