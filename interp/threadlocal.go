package interp

import (
	"github.com/petermattis/goid"
	"github.com/sasha-s/go-deadlock"
)

// ThreadLocals is per-goroutine key/value storage owned by the interpreter.
// The support library keeps each goroutine's attached host contexts here.
type ThreadLocals struct {
	mu    deadlock.Mutex
	slots map[int64]map[string]any
}

func newThreadLocals() *ThreadLocals {
	return &ThreadLocals{slots: make(map[int64]map[string]any)}
}

// Get returns the calling goroutine's value for key.
func (t *ThreadLocals) Get(key string) (any, bool) {
	g := goid.Get()

	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.slots[g][key]
	return v, ok
}

// Set stores v under key for the calling goroutine.
func (t *ThreadLocals) Set(key string, v any) {
	g := goid.Get()

	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slots[g]
	if !ok {
		slot = make(map[string]any)
		t.slots[g] = slot
	}
	slot[key] = v
}

// Delete removes key for the calling goroutine. A goroutine with no keys left
// has no slot at all.
func (t *ThreadLocals) Delete(key string) {
	g := goid.Get()

	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slots[g]
	if !ok {
		return
	}
	delete(slot, key)
	if len(slot) == 0 {
		delete(t.slots, g)
	}
}

// Goroutines returns how many goroutines currently hold any state.
func (t *ThreadLocals) Goroutines() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Clear drops all state for all goroutines.
func (t *ThreadLocals) Clear() {
	t.mu.Lock()
	t.slots = make(map[int64]map[string]any)
	t.mu.Unlock()
}
