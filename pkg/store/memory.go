package store

import (
	"context"
	"sync"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// MemoryStore keeps workflows in a map behind a lock.
// Suitable for single-process deployments and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*schemas.Workflow
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*schemas.Workflow),
	}
}

// CreateWorkflow stores a copy of w
func (m *MemoryStore) CreateWorkflow(ctx context.Context, w *schemas.Workflow) error {
	if w.ID == "" {
		return ErrInvalidWorkflowID
	}

	c, err := w.Clone()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workflows[w.ID]; exists {
		return ErrWorkflowExists
	}
	m.workflows[w.ID] = c
	return nil
}

// GetWorkflow returns a copy so callers cannot mutate stored state
func (m *MemoryStore) GetWorkflow(ctx context.Context, id string) (*schemas.Workflow, error) {
	if id == "" {
		return nil, ErrInvalidWorkflowID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	w, exists := m.workflows[id]
	if !exists {
		return nil, ErrWorkflowNotFound
	}
	return w.Clone()
}

// Mutate runs fn on a working copy under the write lock and swaps it in on success
func (m *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*schemas.Workflow, error) {
	if id == "" {
		return nil, ErrInvalidWorkflowID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.workflows[id]
	if !exists {
		return nil, ErrWorkflowNotFound
	}

	working, err := current.Clone()
	if err != nil {
		return nil, err
	}
	if err := fn(working); err != nil {
		return nil, err
	}

	m.workflows[id] = working
	return working.Clone()
}

// DeleteWorkflow removes a workflow
func (m *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidWorkflowID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workflows[id]; !exists {
		return ErrWorkflowNotFound
	}
	delete(m.workflows, id)
	return nil
}

// ListWorkflows lists workflows matching the filter
func (m *MemoryStore) ListWorkflows(ctx context.Context, filter *ListFilter) ([]*schemas.Workflow, error) {
	m.mu.RLock()
	all := make([]*schemas.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		c, err := w.Clone()
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		all = append(all, c)
	}
	m.mu.RUnlock()

	return applyFilter(all, filter), nil
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}
