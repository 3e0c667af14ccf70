// Package workflow enforces the step approval state machine.
//
// Each step moves pending -> completed -> approved|rejected. A rejected step
// must be completed again before it can be approved. Upload becomes uploaded
// only once research, script, metadata and video are approved, after which the
// workflow is closed.
//
// Completing a step again resets every later step that is not pending, so an
// approval given against older content never survives a regeneration.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/store"
)

// Machine applies transitions to workflows held in a store.Store
type Machine struct {
	store store.Store
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Machine
type Option func(*Machine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides workflow id generation
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// NewMachine creates a state machine over s
func NewMachine(s store.Store, log *logger.Logger, opts ...Option) *Machine {
	m := &Machine{
		store: s,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CompleteOption annotates a completion
type CompleteOption func(*schemas.StepState)

// AsFallback marks the stored data as a placeholder
func AsFallback(reason string) CompleteOption {
	return func(s *schemas.StepState) {
		s.Fallback = true
		s.Reason = reason
	}
}

// Create allocates a workflow with every step pending and returns its id
func (m *Machine) Create(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}

	w := schemas.NewWorkflow(m.newID(), topic, m.now())
	if err := m.store.CreateWorkflow(ctx, w); err != nil {
		return "", fmt.Errorf("create workflow: %w", err)
	}

	m.log.Info("workflow created", "workflow_id", w.ID, "topic", topic)
	return w.ID, nil
}

// Get returns the workflow
func (m *Machine) Get(ctx context.Context, id string) (*schemas.Workflow, error) {
	w, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, m.translate(id, err)
	}
	return w, nil
}

// List returns workflows newest first
func (m *Machine) List(ctx context.Context, filter *store.ListFilter) ([]*schemas.Workflow, error) {
	return m.store.ListWorkflows(ctx, filter)
}

// GetStep returns the state of one step
func (m *Machine) GetStep(ctx context.Context, id string, step schemas.StepName) (*schemas.StepState, error) {
	w, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s := w.Step(step)
	if s == nil {
		return nil, &NotFoundError{Kind: "step", ID: string(step)}
	}
	return s, nil
}

// CompleteStep stores data on the step and marks it completed. Allowed from any
// status so stages can be regenerated; later non-pending steps are reset.
func (m *Machine) CompleteStep(ctx context.Context, id string, step schemas.StepName, data schemas.Payload, opts ...CompleteOption) error {
	if step.Index() < 0 {
		return &NotFoundError{Kind: "step", ID: string(step)}
	}
	if data == nil || data.Stage() != step.Stage() {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, step)
	}

	var reset []schemas.StepName
	_, err := m.mutate(ctx, id, func(w *schemas.Workflow) error {
		reset = reset[:0]
		s, err := stepOf(w, step)
		if err != nil {
			return err
		}
		if w.IsClosed() {
			return ErrWorkflowClosed
		}

		now := m.now()
		s.Status = schemas.StepCompleted
		s.Data = data
		s.CompletedAt = &now
		s.Fallback = false
		s.Reason = ""
		s.LastError = ""
		s.UpdatedAt = now
		for _, opt := range opts {
			opt(s)
		}

		for _, later := range schemas.StepOrder[step.Index()+1:] {
			ls := w.Step(later)
			if ls.Status == schemas.StepPending {
				continue
			}
			ls.Status = schemas.StepPending
			ls.Data = nil
			ls.CompletedAt = nil
			ls.Fallback = false
			ls.Reason = ""
			ls.UpdatedAt = now
			reset = append(reset, later)
		}
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info("step completed", "workflow_id", id, "step", step, "reset", reset)
	return nil
}

// ApproveStep approves a completed step and returns the next step, or "" for the last one
func (m *Machine) ApproveStep(ctx context.Context, id string, step schemas.StepName) (schemas.StepName, error) {
	if err := m.decide(ctx, id, step, schemas.StepApproved, "approve"); err != nil {
		return "", err
	}
	return step.Next(), nil
}

// RejectStep rejects a completed step. It must be completed again before approval.
func (m *Machine) RejectStep(ctx context.Context, id string, step schemas.StepName) error {
	return m.decide(ctx, id, step, schemas.StepRejected, "reject")
}

func (m *Machine) decide(ctx context.Context, id string, step schemas.StepName, to schemas.StepStatus, action string) error {
	_, err := m.mutate(ctx, id, func(w *schemas.Workflow) error {
		s, err := stepOf(w, step)
		if err != nil {
			return err
		}
		if w.IsClosed() {
			return ErrWorkflowClosed
		}
		if s.Status != schemas.StepCompleted {
			return &InvalidTransitionError{Step: step, From: s.Status, Action: action}
		}
		now := m.now()
		s.Status = to
		s.UpdatedAt = now
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info("step "+string(to), "workflow_id", id, "step", step)
	return nil
}

// CheckUploadReady returns a PreconditionError naming the first gating step that is not approved
func (m *Machine) CheckUploadReady(ctx context.Context, id string) error {
	w, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if w.IsClosed() {
		return ErrWorkflowClosed
	}
	return uploadReady(w)
}

// FinalizeUpload marks upload as uploaded and stores the publish result
func (m *Machine) FinalizeUpload(ctx context.Context, id string, result *schemas.UploadData) error {
	if result == nil {
		return fmt.Errorf("%w: upload", ErrInvalidPayload)
	}

	_, err := m.mutate(ctx, id, func(w *schemas.Workflow) error {
		if w.IsClosed() {
			return ErrWorkflowClosed
		}
		if err := uploadReady(w); err != nil {
			return err
		}
		now := m.now()
		up := w.Step(schemas.StepUpload)
		up.Status = schemas.StepUploaded
		up.Data = result
		up.CompletedAt = &now
		up.LastError = ""
		up.UpdatedAt = now
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info("workflow uploaded", "workflow_id", id, "external_id", result.ExternalID)
	return nil
}

// RecordFailure stores a diagnostic on the step without changing its status
func (m *Machine) RecordFailure(ctx context.Context, id string, step schemas.StepName, reason string) error {
	_, err := m.mutate(ctx, id, func(w *schemas.Workflow) error {
		s, err := stepOf(w, step)
		if err != nil {
			return err
		}
		now := m.now()
		s.LastError = reason
		s.UpdatedAt = now
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Warn("step failure recorded", "workflow_id", id, "step", step, "reason", reason)
	return nil
}

func (m *Machine) mutate(ctx context.Context, id string, fn store.MutateFunc) (*schemas.Workflow, error) {
	w, err := m.store.Mutate(ctx, id, fn)
	if err != nil {
		return nil, m.translate(id, err)
	}
	return w, nil
}

func (m *Machine) translate(id string, err error) error {
	if errors.Is(err, store.ErrWorkflowNotFound) || errors.Is(err, store.ErrInvalidWorkflowID) {
		return &NotFoundError{Kind: "workflow", ID: id}
	}
	return err
}

func stepOf(w *schemas.Workflow, step schemas.StepName) (*schemas.StepState, error) {
	s := w.Step(step)
	if s == nil {
		return nil, &NotFoundError{Kind: "step", ID: string(step)}
	}
	return s, nil
}

func uploadReady(w *schemas.Workflow) error {
	for _, gate := range schemas.UploadGates {
		s := w.Step(gate)
		if s.Status != schemas.StepApproved {
			return &PreconditionError{Step: gate, Status: s.Status}
		}
	}
	return nil
}
