package kernel

import (
	"sync"

	"github.com/wippyai/wasmosis/resource"
)

// Table is a module's capability table: a growable slot array with a free
// list, so slot numbers are reused after release. Each used slot holds one
// registry reference.
//
// Methods suffixed Locked require mu to be held. The kernel never holds two
// table locks at once; a table lock may be held while calling the registry.
type Table struct {
	slots    []slot
	freeList []Cap
	limit    int
	live     int
	mu       sync.Mutex
}

type slot struct {
	id       resource.ID
	gen      uint32
	used     bool
	borrowed bool
}

// grant is a borrowed argument slot placed by the dispatcher. gen pins the
// exact occupant so a slot the callee freed and reused is left alone.
type grant struct {
	id  resource.ID
	cap Cap
	gen uint32
}

func newTable(limit int) *Table {
	return &Table{
		slots:    make([]slot, 0, 16),
		freeList: make([]Cap, 0, 8),
		limit:    limit,
	}
}

// Len returns the number of used slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *Table) insertLocked(id resource.ID, borrowed bool) (Cap, uint32, bool) {
	if t.limit > 0 && t.live >= t.limit {
		return Null, 0, false
	}

	var c Cap
	if n := len(t.freeList); n > 0 {
		c = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		t.slots = append(t.slots, slot{})
		c = Cap(len(t.slots))
	}

	s := &t.slots[c-1]
	s.id = id
	s.gen++
	s.used = true
	s.borrowed = borrowed
	t.live++
	return c, s.gen, true
}

func (t *Table) resolveLocked(c Cap) (resource.ID, bool) {
	s := t.slotLocked(c)
	if s == nil {
		return 0, false
	}
	return s.id, true
}

func (t *Table) removeLocked(c Cap) (resource.ID, bool) {
	s := t.slotLocked(c)
	if s == nil {
		return 0, false
	}
	id := s.id
	s.id = 0
	s.used = false
	s.borrowed = false
	t.freeList = append(t.freeList, c)
	t.live--
	return id, true
}

// removeGrantLocked frees g's slot only if it still holds the same occupant.
func (t *Table) removeGrantLocked(g grant) bool {
	s := t.slotLocked(g.cap)
	if s == nil || s.gen != g.gen || s.id != g.id {
		return false
	}
	_, ok := t.removeLocked(g.cap)
	return ok
}

// drainLocked frees every slot and returns the ids they referenced.
func (t *Table) drainLocked() []resource.ID {
	ids := make([]resource.ID, 0, t.live)
	for i := range t.slots {
		if t.slots[i].used {
			ids = append(ids, t.slots[i].id)
		}
	}
	t.slots = nil
	t.freeList = nil
	t.live = 0
	return ids
}

func (t *Table) slotLocked(c Cap) *slot {
	if c == Null || int(c) > len(t.slots) {
		return nil
	}
	s := &t.slots[c-1]
	if !s.used {
		return nil
	}
	return s
}

func (t *Table) eachLocked(fn func(Cap, slot)) {
	for i, s := range t.slots {
		if s.used {
			fn(Cap(i+1), s)
		}
	}
}
