package support

import (
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/chazu/starbridge/host"
)

// Proxy is a host object held by a script.
//
// A proxy pins its object in the runtime's reference table for as long as the
// proxy is reachable. Attribute access yields bound methods that invoke the
// object through whichever context is attached when they are called.
type Proxy struct {
	lib *Library
	obj host.Object
	rt  *host.Runtime
	ref host.Ref

	released atomic.Bool
}

var (
	_ starlark.HasAttrs   = (*Proxy)(nil)
	_ starlark.Comparable = (*Proxy)(nil)
)

type pin struct {
	refs *host.RefTable
	ref  host.Ref
}

// NewProxy pins obj through env and returns its proxy.
func NewProxy(lib *Library, env *host.Env, obj host.Object) *Proxy {
	p := &Proxy{
		lib: lib,
		obj: obj,
		rt:  env.Runtime(),
		ref: env.NewGlobalRef(obj, refOwner),
	}
	runtime.AddCleanup(p, func(c pin) { c.refs.Release(c.ref) }, pin{refs: p.rt.Refs(), ref: p.ref})
	return p
}

// Object returns the proxied host object.
func (p *Proxy) Object() host.Object { return p.obj }

// Ref returns the proxy's global reference.
func (p *Proxy) Ref() host.Ref { return p.ref }

// Release drops the global reference now instead of at collection.
func (p *Proxy) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.rt.Refs().Release(p.ref)
	}
}

func (p *Proxy) String() string       { return fmt.Sprintf("<proxy %s>", p.obj.ClassName()) }
func (p *Proxy) Type() string         { return "proxy" }
func (p *Proxy) Freeze()              {}
func (p *Proxy) Truth() starlark.Bool { return starlark.True }

func (p *Proxy) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: proxy of %s", p.obj.ClassName())
}

// CompareSameType compares host identity.
func (p *Proxy) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	q := y.(*Proxy)
	switch op {
	case syntax.EQL:
		return host.SameObject(p.obj, q.obj), nil
	case syntax.NEQ:
		return !host.SameObject(p.obj, q.obj), nil
	}
	return false, fmt.Errorf("%s %s %s not supported", p.Type(), op, y.Type())
}

func (p *Proxy) Attr(name string) (starlark.Value, error) {
	if d, ok := p.obj.(host.Describer); ok && !slices.Contains(d.Methods(), name) {
		return nil, nil
	}
	return starlark.NewBuiltin(name, p.invoke).BindReceiver(p), nil
}

func (p *Proxy) AttrNames() []string {
	if d, ok := p.obj.(host.Describer); ok {
		return d.Methods()
	}
	return nil
}

func (p *Proxy) invoke(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s.%s: keyword arguments not supported", p.obj.ClassName(), b.Name())
	}
	env, err := p.lib.Env()
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", p.obj.ClassName(), b.Name(), err)
	}

	goArgs := make([]any, len(args))
	for i, a := range args {
		if goArgs[i], err = p.lib.FromStarlark(a); err != nil {
			return nil, fmt.Errorf("%s.%s: argument %d: %w", p.obj.ClassName(), b.Name(), i, err)
		}
	}

	result, err := env.Call(p.obj, b.Name(), goArgs...)
	if err != nil {
		return nil, err
	}
	return p.lib.ToStarlark(env, result)
}
