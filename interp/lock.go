package interp

import (
	"sync"

	"github.com/petermattis/goid"
	"github.com/sasha-s/go-deadlock"
)

// Lock is the global execution lock over interpreter state.
//
// It is reentrant for the goroutine that holds it: a host callback that
// re-enters the bridge on the same goroutine nests instead of deadlocking.
// Every Ensure must be paired with a Release.
type Lock struct {
	mu    deadlock.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

// NewLock creates an unheld lock.
func NewLock() *Lock {
	l := &Lock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Ensure blocks until the calling goroutine holds the lock.
func (l *Lock) Ensure() {
	g := goid.Get()

	l.mu.Lock()
	for l.depth > 0 && l.owner != g {
		l.cond.Wait()
	}
	l.owner = g
	l.depth++
	l.mu.Unlock()
}

// Release undoes one Ensure. Releasing a lock the goroutine does not hold panics.
func (l *Lock) Release() {
	g := goid.Get()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 || l.owner != g {
		panic("interp: release of unheld execution lock")
	}
	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Signal()
	}
}

// Held reports whether the calling goroutine holds the lock.
func (l *Lock) Held() bool {
	g := goid.Get()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0 && l.owner == g
}

// Depth returns the calling goroutine's nesting depth, zero if it does not hold the lock.
func (l *Lock) Depth() int {
	g := goid.Get()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != g {
		return 0
	}
	return l.depth
}
