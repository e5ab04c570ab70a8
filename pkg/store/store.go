package store

import (
	"time"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

// Filter narrows a List call, a nil/empty state list matches everything
type Filter struct {
	States []types.State
}

// Matches reports whether the given state passes the filter
func (f Filter) Matches(state types.State) bool {
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if s == state {
			return true
		}
	}
	return false
}

// Summary is the lightweight listing row of one persisted context
type Summary struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	State     types.State `json:"state"`
	StartedAt time.Time   `json:"startedAt"`
}

// Store durably persists experiment contexts. The engine saves after every
// state transition (write-ahead) and must not proceed past a transition whose
// persistence failed.
type Store interface {
	Save(ec *types.ExperimentContext) error
	Load(id string) (*types.ExperimentContext, error)
	List(filter Filter) ([]Summary, error)
	Close() error
}

// IsNotFound reports whether the error marks an unknown experiment id
func IsNotFound(err error) bool {
	return cerrors.GetErrorType(err) == cerrors.ErrorTypeNotFound
}

// NotFound builds the unknown-experiment error
func NotFound(id string) error {
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeNotFound,
		Reason:    "experiment not found: " + id,
	}
}
