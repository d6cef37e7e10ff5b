package bridge

import (
	"go.starlark.net/starlark"

	"github.com/chazu/starbridge/capsule"
	"github.com/chazu/starbridge/host"
	"github.com/chazu/starbridge/interp"
	"github.com/chazu/starbridge/support"
)

// wrapHandle asks the attached context for a proxy of obj. A nil object is
// None.
func (b *Bridge) wrapHandle(obj host.Object) (starlark.Value, error) {
	if obj == nil {
		return starlark.None, nil
	}

	env, err := b.callSupport(support.ModuleName, support.FnGetEnv)
	if err != nil {
		return nil, b.fail(KindBridge, "wrap", err)
	}

	c, err := capsule.New(capsule.OwnerHost, capsule.TagObject, obj)
	if err != nil {
		return nil, b.fail(KindBridge, "wrap", err)
	}
	defer c.Release()

	proxy, err := b.in.CallMethod(env, support.FnMakeProxy, c)
	if err != nil {
		return nil, b.fail(KindBridge, "wrap", err)
	}
	return proxy, nil
}

// mapToNamespace builds a namespace from a host map. A nil map gives an
// empty namespace.
func (b *Bridge) mapToNamespace(name string, m host.Object) (*interp.Namespace, error) {
	if m == nil {
		return interp.NewNamespace(name), nil
	}

	wrapped, err := b.wrapHandle(m)
	if err != nil {
		return nil, err
	}
	if p, ok := wrapped.(*support.Proxy); ok {
		defer p.Release()
	}

	mapping, err := b.callSupport(support.UtilModuleName, support.FnMakeMapping, wrapped)
	if err != nil {
		return nil, b.fail(KindBridge, "marshal "+name, err)
	}
	ns, err := interp.NamespaceFromMapping(name, mapping)
	if err != nil {
		return nil, b.fail(KindBridge, "marshal "+name, err)
	}
	return ns, nil
}

// mergeTopLevel copies the persistent top-level bindings into ns. Names
// already in ns keep their values.
func (b *Bridge) mergeTopLevel(ns *interp.Namespace) error {
	if err := ns.Merge(b.in.Main(), false); err != nil {
		return b.fail(KindBridge, "merge", err)
	}
	return nil
}
