package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed   = errors.New("resource registry closed")
	ErrInvalid  = errors.New("resource does not exist")
	ErrNotOwner = errors.New("resource is owned by another module")
)

// Registry is the kernel-wide arena of shared objects. Every capability slot
// in every module table holds exactly one reference on an entry here; the
// entry is destroyed when its reference count drops to zero.
//
// Safe for concurrent use. Observers are notified outside the lock.
type Registry struct {
	entries   []entry
	freeList  []ID
	observers []Observer
	refs      uint64
	live      int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value   any
	owner   uint32
	refs    uint32
	kind    Kind
	revoked bool
	valid   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make([]entry, 0, 64),
		freeList: make([]ID, 0, 16),
	}
}

// Create stores a new object with a reference count of one.
func (r *Registry) Create(kind Kind, owner uint32, value any) (ID, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}

	e := entry{
		kind:  kind,
		owner: owner,
		value: value,
		refs:  1,
		valid: true,
	}

	var id ID
	if len(r.freeList) > 0 {
		id = r.freeList[len(r.freeList)-1]
		r.freeList = r.freeList[:len(r.freeList)-1]
		r.entries[id-1] = e
	} else {
		r.entries = append(r.entries, e)
		id = ID(len(r.entries))
	}
	r.live++
	r.refs++
	r.mu.Unlock()

	r.notify(Event{Type: EventCreated, ID: id, Kind: kind, Owner: owner, Refs: 1, Value: value})
	return id, nil
}

// Acquire adds a reference to a live object.
func (r *Registry) Acquire(id ID) error {
	r.mu.Lock()
	e := r.lookup(id)
	if e == nil {
		r.mu.Unlock()
		return ErrInvalid
	}
	e.refs++
	r.refs++
	ev := Event{Type: EventAcquired, ID: id, Kind: e.kind, Owner: e.owner, Refs: e.refs}
	r.mu.Unlock()

	r.notify(ev)
	return nil
}

// Release drops a reference. When the count reaches zero the entry is
// freed, its value dropped, and destroyed reports true.
func (r *Registry) Release(id ID) (destroyed bool, err error) {
	r.mu.Lock()
	e := r.lookup(id)
	if e == nil {
		r.mu.Unlock()
		return false, ErrInvalid
	}

	e.refs--
	r.refs--
	ev := Event{Type: EventReleased, ID: id, Kind: e.kind, Owner: e.owner, Refs: e.refs}

	if e.refs > 0 {
		r.mu.Unlock()
		r.notify(ev)
		return false, nil
	}

	value := e.value
	gone := Event{Type: EventDestroyed, ID: id, Kind: e.kind, Owner: e.owner, Value: value}
	*e = entry{}
	r.freeList = append(r.freeList, id)
	r.live--
	r.mu.Unlock()

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	r.notify(ev)
	r.notify(gone)
	return true, nil
}

// Revoke marks an object revoked. Only the owning module may revoke.
// Revoking twice is not an error.
func (r *Registry) Revoke(id ID, owner uint32) error {
	r.mu.Lock()
	e := r.lookup(id)
	if e == nil {
		r.mu.Unlock()
		return ErrInvalid
	}
	if e.owner != owner {
		r.mu.Unlock()
		return ErrNotOwner
	}
	if e.revoked {
		r.mu.Unlock()
		return nil
	}
	e.revoked = true
	ev := Event{Type: EventRevoked, ID: id, Kind: e.kind, Owner: e.owner, Refs: e.refs}
	r.mu.Unlock()

	r.notify(ev)
	return nil
}

// RevokeOwned revokes every live object owned by owner and returns how many
// changed state.
func (r *Registry) RevokeOwned(owner uint32) int {
	r.mu.Lock()
	var events []Event
	for i := range r.entries {
		e := &r.entries[i]
		if e.valid && e.owner == owner && !e.revoked {
			e.revoked = true
			events = append(events, Event{Type: EventRevoked, ID: ID(i + 1), Kind: e.kind, Owner: owner, Refs: e.refs})
		}
	}
	r.mu.Unlock()

	for _, ev := range events {
		r.notify(ev)
	}
	return len(events)
}

// Get returns a view of a live object.
func (r *Registry) Get(id ID) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.lookup(id)
	if e == nil {
		return Object{}, false
	}
	return Object{
		Value:   e.value,
		Owner:   e.owner,
		Refs:    e.refs,
		Kind:    e.kind,
		Revoked: e.revoked,
	}, true
}

// Stats returns the number of live objects and outstanding references.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Objects: r.live, Refs: r.refs}
}

// Len returns the number of live objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Each iterates over all live objects.
func (r *Registry) Each(fn func(ID, Object) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, e := range r.entries {
		if !e.valid {
			continue
		}
		obj := Object{Value: e.value, Owner: e.owner, Refs: e.refs, Kind: e.kind, Revoked: e.revoked}
		if !fn(ID(i+1), obj) {
			break
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Close drops every remaining object and rejects further creation.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	var drop []Dropper
	for i := range r.entries {
		if r.entries[i].valid {
			if d, ok := r.entries[i].value.(Dropper); ok {
				drop = append(drop, d)
			}
		}
	}
	r.entries = nil
	r.freeList = nil
	r.live = 0
	r.refs = 0
	r.mu.Unlock()

	for _, d := range drop {
		d.Drop()
	}
	return nil
}

// lookup must be called with mu held.
func (r *Registry) lookup(id ID) *entry {
	if id == 0 || int(id) > len(r.entries) {
		return nil
	}
	e := &r.entries[id-1]
	if !e.valid {
		return nil
	}
	return e
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnResourceEvent(e)
	}
}
