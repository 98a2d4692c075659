package fleet

import (
	"sort"
	"sync"

	"github.com/roach88/hydroexec/internal/ir"
)

// Board is the shared registry of the latest published status of every
// unit. Executives publish after each cycle and read a copy when they need
// a fleet snapshot.
//
// Thread-safe: Publish and Snapshot may be called from any goroutine.
type Board struct {
	mu    sync.RWMutex
	units map[string]ir.UnitStatus
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{units: make(map[string]ir.UnitStatus)}
}

// Publish records the latest status of a unit.
func (b *Board) Publish(s ir.UnitStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.units[s.ID] = s
}

// Snapshot returns a copy of all statuses ordered by unit id.
func (b *Board) Snapshot() []ir.UnitStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ir.UnitStatus, 0, len(b.units))
	for _, s := range b.units {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the latest status of one unit.
func (b *Board) Get(id string) (ir.UnitStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.units[id]
	return s, ok
}
