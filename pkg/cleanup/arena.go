package cleanup

import (
	"sync"
	"time"

	"github.com/chaosworks/havok/pkg/strategy"
	"github.com/chaosworks/havok/pkg/types"
)

// entry couples one experiment context with its fault strategy. Each entry
// carries its own lock so that sweeping one experiment never blocks another.
type entry struct {
	mu           sync.Mutex
	ec           *types.ExperimentContext
	strat        strategy.FaultStrategy
	recovered    bool
	firstFailure map[string]time.Time
}

// Arena owns the map of experiments the cleanup daemon reconciles, it is
// passed explicitly to the daemon and the engine rather than living as
// ambient global state
type Arena struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewArena returns an empty arena
func NewArena() *Arena {
	return &Arena{entries: map[string]*entry{}}
}

// Register adds a live experiment to the sweep list
func (a *Arena) Register(ec *types.ExperimentContext, strat strategy.FaultStrategy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[ec.ID] = &entry{
		ec:           ec,
		strat:        strat,
		firstFailure: map[string]time.Time{},
	}
}

// RegisterRecovered adds a context found in the store after a restart, every
// active record of a recovered context is immediately eligible for cleanup
func (a *Arena) RegisterRecovered(ec *types.ExperimentContext, strat strategy.FaultStrategy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[ec.ID] = &entry{
		ec:           ec,
		strat:        strat,
		recovered:    true,
		firstFailure: map[string]time.Time{},
	}
}

// Deregister drops an experiment from the sweep list once it is terminal and
// fully cleaned
func (a *Arena) Deregister(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, id)
}

func (a *Arena) get(id string) (*entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[id]
	return e, ok
}

// snapshot returns the current entries without holding the arena lock during
// the sweep itself
func (a *Arena) snapshot() []*entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries := make([]*entry, 0, len(a.entries))
	for _, e := range a.entries {
		entries = append(entries, e)
	}
	return entries
}
