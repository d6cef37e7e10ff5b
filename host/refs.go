package host

import (
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Ref is an opaque global reference id. Zero is the null reference.
type Ref uint64

// globalRef keeps a host object reachable while the interpreter holds it.
type globalRef struct {
	obj      Object
	owner    string
	created  time.Time
	lastUsed time.Time
}

// RefTable maps reference ids to pinned host objects.
type RefTable struct {
	mu     deadlock.RWMutex
	refs   map[Ref]*globalRef
	nextID atomic.Uint64
}

// NewRefTable creates an empty reference table.
func NewRefTable() *RefTable {
	return &RefTable{refs: make(map[Ref]*globalRef)}
}

// Create pins obj and returns its reference. A nil object yields the null reference.
func (t *RefTable) Create(obj Object, owner string) Ref {
	if obj == nil {
		return 0
	}
	ref := Ref(t.nextID.Add(1))

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.refs[ref] = &globalRef{
		obj:      obj,
		owner:    owner,
		created:  now,
		lastUsed: now,
	}
	return ref
}

// Lookup returns the object for ref, or nil and false.
func (t *RefTable) Lookup(ref Ref) (Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.refs[ref]
	if !ok {
		return nil, false
	}
	r.lastUsed = time.Now()
	return r.obj, true
}

// Release unpins ref. Releasing an unknown reference is a no-op.
func (t *RefTable) Release(ref Ref) {
	t.mu.Lock()
	delete(t.refs, ref)
	t.mu.Unlock()
}

// ReleaseOwner unpins every reference held by owner.
func (t *RefTable) ReleaseOwner(owner string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, r := range t.refs {
		if r.owner == owner {
			delete(t.refs, id)
			removed++
		}
	}
	return removed
}

// Sweep unpins references not looked up within ttl.
func (t *RefTable) Sweep(ttl time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, r := range t.refs {
		if r.lastUsed.Before(cutoff) {
			delete(t.refs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live references.
func (t *RefTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.refs)
}

// CountOwner returns the number of live references held by owner.
func (t *RefTable) CountOwner(owner string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, r := range t.refs {
		if r.owner == owner {
			n++
		}
	}
	return n
}
