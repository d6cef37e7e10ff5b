package bridge

import (
	"errors"

	"go.starlark.net/starlark"

	"github.com/chazu/starbridge/capsule"
	"github.com/chazu/starbridge/host"
	"github.com/chazu/starbridge/support"
)

// attach registers env with the support library for the calling goroutine.
// The execution lock must be held.
func (b *Bridge) attach(env *host.Env) (*capsule.Capsule, error) {
	c, err := capsule.New(capsule.OwnerHost, capsule.TagEnv, env)
	if err != nil {
		return nil, b.fail(KindBridge, "attach", err)
	}
	if _, err := b.callSupport(support.ModuleName, support.FnJNIEnter, c); err != nil {
		c.Release()
		return nil, b.fail(KindBridge, "attach", err)
	}
	return c, nil
}

// detach unregisters the most recently attached context.
func (b *Bridge) detach() error {
	if _, err := b.callSupport(support.ModuleName, support.FnJNIExit); err != nil {
		return b.fail(KindBridge, "detach", err)
	}
	return nil
}

// withContext runs fn with env attached. Once attach succeeds, detach runs
// on every path out, and the goroutine's registry is left as it was found
// even if jni_exit itself fails.
func (b *Bridge) withContext(env *host.Env, fn func() error) (err error) {
	depth := b.lib.Depth()
	c, err := b.attach(env)
	if err != nil {
		b.lib.Truncate(depth)
		return err
	}
	defer c.Release()

	defer func() {
		if derr := b.detach(); derr != nil {
			b.lib.Truncate(depth)
			err = errors.Join(err, derr)
		}
	}()
	return fn()
}

// callSupport looks up fn in the named support module and calls it.
func (b *Bridge) callSupport(module, fn string, args ...starlark.Value) (starlark.Value, error) {
	mod, err := b.in.Import(module)
	if err != nil {
		return nil, err
	}
	f, err := b.in.GetAttr(mod, fn)
	if err != nil {
		return nil, err
	}
	return b.in.Call(f, args...)
}

// fail turns err into a fault and clears the interpreter's error indicator.
func (b *Bridge) fail(kind Kind, op string, err error) *Fault {
	b.in.Clear()
	return newFault(kind, op, err)
}
