package stages

import (
	"fmt"
	"sync"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// Registry stores stage executors in registration order
type Registry struct {
	executors map[schemas.StageName]Executor
	order     []schemas.StageName
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[schemas.StageName]Executor)}
}

// Register adds an executor, replacing any executor for the same stage
func (r *Registry) Register(ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ex.Describe().Name
	if _, ok := r.executors[name]; !ok {
		r.order = append(r.order, name)
	}
	r.executors[name] = ex
}

// Get retrieves an executor by stage name
func (r *Registry) Get(name schemas.StageName) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ex, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("stage '%s' not registered", name)
	}
	return ex, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name schemas.StageName) bool {
	_, err := r.Get(name)
	return err == nil
}

// List returns executors in registration order
func (r *Registry) List() []Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Executor, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.executors[name])
	}
	return result
}
