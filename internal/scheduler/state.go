package scheduler

import (
	"fmt"
	"sync"

	"github.com/rickgao/stock-data/internal/model"
)

// stateTable tracks every unit of a run. Each unit moves
// Pending -> InFlight -> terminal, or Pending -> Failed, exactly once.
type stateTable struct {
	mu     sync.Mutex
	states map[model.WorkUnit]model.UnitState
}

func newStateTable(units []model.WorkUnit) *stateTable {
	states := make(map[model.WorkUnit]model.UnitState, len(units))
	for _, u := range units {
		states[u] = model.StatePending
	}
	return &stateTable{states: states}
}

func (t *stateTable) transition(u model.WorkUnit, to model.UnitState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from, ok := t.states[u]
	if !ok {
		return fmt.Errorf("unit %s not in run", u)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("unit %s: illegal transition %s -> %s", u, from, to)
	}
	t.states[u] = to
	return nil
}

func (t *stateTable) get(u model.WorkUnit) model.UnitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[u]
}

// counts returns the number of units in each state.
func (t *stateTable) counts() map[model.UnitState]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[model.UnitState]int, 4)
	for _, s := range t.states {
		out[s]++
	}
	return out
}
