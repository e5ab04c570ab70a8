package store

import (
	"encoding/json"
	"sync"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

// MemStore is the in-memory Store used by tests and ephemeral runs, records
// are kept serialized so that Load always returns an independent copy
type MemStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemStore returns an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{records: map[string][]byte{}}
}

func (s *MemStore) Save(ec *types.ExperimentContext) error {
	snap := ec.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to encode context: " + err.Error(),
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[snap.ID] = data
	return nil
}

func (s *MemStore) Load(id string) (*types.ExperimentContext, error) {
	s.mu.RLock()
	data, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, NotFound(id)
	}
	var ec types.ExperimentContext
	if err := json.Unmarshal(data, &ec); err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to decode context: " + err.Error(),
		}
	}
	return &ec, nil
}

func (s *MemStore) List(filter Filter) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var summaries []Summary
	for _, data := range s.records {
		var ec types.ExperimentContext
		if err := json.Unmarshal(data, &ec); err != nil {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeStorage,
				Reason:    "failed to decode context: " + err.Error(),
			}
		}
		if !filter.Matches(ec.State) {
			continue
		}
		summaries = append(summaries, Summary{
			ID:        ec.ID,
			Name:      ec.Definition.Name,
			State:     ec.State,
			StartedAt: ec.StartedAt,
		})
	}
	return summaries, nil
}

func (s *MemStore) Close() error {
	return nil
}
