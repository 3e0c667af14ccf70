package schemas

import (
	"encoding/json"
	"time"
)

// Workflow is one end-to-end production run for a single topic
type Workflow struct {
	ID        string       `json:"id"`
	Topic     string       `json:"topic"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Steps     []*StepState `json:"steps"`
}

// NewWorkflow returns a workflow with every step pending
func NewWorkflow(id, topic string, now time.Time) *Workflow {
	w := &Workflow{
		ID:        id,
		Topic:     topic,
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     make([]*StepState, 0, len(StepOrder)),
	}
	for _, name := range StepOrder {
		w.Steps = append(w.Steps, &StepState{Name: name, Status: StepPending, UpdatedAt: now})
	}
	return w
}

// Step returns the state of the named step, or nil
func (w *Workflow) Step(name StepName) *StepState {
	for _, s := range w.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// IsClosed reports whether the workflow has been published
func (w *Workflow) IsClosed() bool {
	up := w.Step(StepUpload)
	return up != nil && up.Status == StepUploaded
}

// Clone returns a deep copy
func (w *Workflow) Clone() (*Workflow, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var out Workflow
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
