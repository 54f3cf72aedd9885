package routing

import (
	"sync"

	"github.com/skycoin/busnet/pkg/dll"
)

// RangeFunc is used by Range to iterate over resolved routes.
type RangeFunc func(dest Addr, hop dll.Addr) (next bool)

// Table stores the next hop computed for each destination.
type Table interface {
	// SetNextHop records hop as the next hop for dest. Setting Unresolved
	// removes the entry.
	SetNextHop(dest Addr, hop dll.Addr) error

	// NextHop returns the next hop for dest, or Unresolved.
	NextHop(dest Addr) (dll.Addr, error)

	// Range iterates over resolved routes until rangeFunc returns false.
	Range(rangeFunc RangeFunc) error

	// Count returns the number of resolved routes.
	Count() int

	// Close safely closes the table.
	Close() error
}

type inMemoryTable struct {
	sync.RWMutex
	hops map[Addr]dll.Addr
}

// InMemoryTable returns an in-memory Table implementation.
func InMemoryTable() Table {
	return &inMemoryTable{
		hops: map[Addr]dll.Addr{},
	}
}

func (t *inMemoryTable) SetNextHop(dest Addr, hop dll.Addr) error {
	t.Lock()
	if hop == Unresolved {
		delete(t.hops, dest)
	} else {
		t.hops[dest] = hop
	}
	t.Unlock()
	return nil
}

func (t *inMemoryTable) NextHop(dest Addr) (dll.Addr, error) {
	t.RLock()
	hop, ok := t.hops[dest]
	t.RUnlock()
	if !ok {
		return Unresolved, nil
	}
	return hop, nil
}

func (t *inMemoryTable) Range(rangeFunc RangeFunc) error {
	t.RLock()
	defer t.RUnlock()

	for dest := Addr(0); dest <= MaxAddr; dest++ {
		hop, ok := t.hops[dest]
		if !ok {
			continue
		}
		if !rangeFunc(dest, hop) {
			break
		}
	}
	return nil
}

func (t *inMemoryTable) Count() int {
	t.RLock()
	count := len(t.hops)
	t.RUnlock()
	return count
}

func (t *inMemoryTable) Close() error {
	return nil
}
