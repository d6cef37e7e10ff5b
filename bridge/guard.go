package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/starbridge/capsule"
	"github.com/chazu/starbridge/support"
)

// State is the bridge lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	// StateDegraded means initialization finished with problems. Calls still
	// go ahead and are expected to fail at attach.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

type guard struct {
	once  sync.Once
	state atomic.Int32
}

func (g *guard) load() State { return State(g.state.Load()) }

func (b *Bridge) ensureReady() {
	b.guard.once.Do(func() {
		state := StateReady
		if err := bootstrap(b.cfg.Library); err != nil {
			log.Warningf("bootstrap: %s", err)
			state = StateDegraded
		}
		if err := b.in.Initialize(); err != nil {
			log.Warningf("interpreter initialization: %s", err)
			state = StateDegraded
		}
		if err := b.handshake(); err != nil {
			log.Warningf("handshake: %s", err)
			state = StateDegraded
		}
		b.guard.state.Store(int32(state))
		log.Infof("bridge %s for %s", state, b.rt)
	})
}

// handshake hands the interpreter the runtime handle, so scripts can obtain
// contexts on demand.
func (b *Bridge) handshake() error {
	b.in.Lock().Ensure()
	defer b.in.Lock().Release()

	c, err := capsule.New(capsule.OwnerHost, capsule.TagRuntime, b.rt)
	if err != nil {
		return b.fail(KindBootstrap, "handshake", err)
	}
	if _, err := b.callSupport(support.ModuleName, support.FnJVMEnter, c); err != nil {
		return b.fail(KindBootstrap, "handshake", err)
	}
	return nil
}
