// Package store provides workflow state persistence
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/chicogong/ytagents/pkg/schemas"
)

var (
	// ErrWorkflowNotFound is returned when a workflow does not exist
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowExists is returned when creating a workflow whose ID is taken
	ErrWorkflowExists = errors.New("workflow already exists")

	// ErrInvalidWorkflowID is returned for empty workflow IDs
	ErrInvalidWorkflowID = errors.New("invalid workflow ID")
)

// MutateFunc changes a workflow in place. Returning an error aborts the write.
type MutateFunc func(w *schemas.Workflow) error

// Store is the workflow repository. Implementations must make Mutate atomic
// per workflow so concurrent transitions never lose updates.
type Store interface {
	// CreateWorkflow stores a new workflow
	CreateWorkflow(ctx context.Context, w *schemas.Workflow) error

	// GetWorkflow returns a copy of the workflow
	GetWorkflow(ctx context.Context, id string) (*schemas.Workflow, error)

	// Mutate applies fn to the stored workflow and persists the result
	Mutate(ctx context.Context, id string, fn MutateFunc) (*schemas.Workflow, error)

	// DeleteWorkflow removes a workflow
	DeleteWorkflow(ctx context.Context, id string) error

	// ListWorkflows lists workflows, newest first unless the filter says otherwise
	ListWorkflows(ctx context.Context, filter *ListFilter) ([]*schemas.Workflow, error)

	// Close releases resources
	Close() error
}

// ListFilter defines filtering criteria for listing workflows
type ListFilter struct {
	Topic         string     `json:"topic,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder is "asc" or "desc" on created_at then id (default desc)
	SortOrder string `json:"sort_order,omitempty"`
}

func (f *ListFilter) matches(w *schemas.Workflow) bool {
	if f == nil {
		return true
	}
	if f.Topic != "" && f.Topic != w.Topic {
		return false
	}
	if f.CreatedAfter != nil && !w.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !w.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// applyFilter filters, sorts and paginates an already loaded set
func applyFilter(all []*schemas.Workflow, f *ListFilter) []*schemas.Workflow {
	out := make([]*schemas.Workflow, 0, len(all))
	for _, w := range all {
		if f.matches(w) {
			out = append(out, w)
		}
	}

	// equal timestamps fall back to the id so pages never reshuffle
	asc := f != nil && f.SortOrder == "asc"
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if asc {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	if f == nil {
		return out
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*schemas.Workflow{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}
