package strategy

import (
	"context"
	"sync"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

// FaultStrategy performs and removes one fault kind on one target. Remove is
// idempotent: removing an unknown or already removed handle is a no-op.
type FaultStrategy interface {
	Name() string
	Validate(params map[string]string) error
	Inject(ctx context.Context, target types.Target, params map[string]string) (string, error)
	Remove(ctx context.Context, handle string) error
	IsActive(ctx context.Context, handle string) (bool, error)
}

// Registry holds the fault strategies selected at configuration time
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]FaultStrategy
}

// NewRegistry returns an empty strategy registry
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]FaultStrategy{}}
}

// Register adds the strategy under its name, the last registration wins
func (r *Registry) Register(s FaultStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy for the given fault type
func (r *Registry) Get(faultType string) (FaultStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[faultType]
	if !ok {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeValidation,
			Reason:    "no strategy registered for fault type '" + faultType + "'",
		}
	}
	return s, nil
}

// Names lists the registered fault types
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}
