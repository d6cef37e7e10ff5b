package bridge

import (
	"go.starlark.net/starlark"

	"github.com/chazu/starbridge/host"
	"github.com/chazu/starbridge/interp"
)

// Outcome holds the namespaces a fragment ran in, as they were when it
// finished. When locals and globals were the same map, both fields hold the
// same bindings.
type Outcome struct {
	Locals  starlark.StringDict
	Globals starlark.StringDict

	// Bound lists, sorted, the names the fragment stored into locals.
	Bound []string

	// Aliased reports whether locals and globals were one namespace.
	Aliased bool
}

// run executes script against namespaces built from locals and globals.
// The lock must be held and a context attached.
func (b *Bridge) run(script string, locals, globals host.Object) (*Outcome, error) {
	lns, err := b.mapToNamespace("locals", locals)
	if err != nil {
		return nil, err
	}
	defer lns.Release()

	aliased := locals != nil && globals != nil && host.SameObject(locals, globals)

	var gns *interp.Namespace
	if aliased {
		gns = lns.Retain()
	} else if gns, err = b.mapToNamespace("globals", globals); err != nil {
		return nil, err
	}
	defer gns.Release()

	if err := b.mergeTopLevel(gns); err != nil {
		return nil, err
	}

	bound, err := b.in.ExecBound(b.cfg.Interpreter.Filename, script, gns, lns)
	if err != nil {
		b.in.PrintErr()
		return nil, b.fail(KindExecution, "run", err)
	}

	return &Outcome{
		Locals:  lns.Snapshot(),
		Globals: gns.Snapshot(),
		Bound:   bound,
		Aliased: aliased,
	}, nil
}

// Value returns the binding for name, looking in locals, then globals.
func (o *Outcome) Value(name string) (starlark.Value, bool) {
	if v, ok := o.Locals[name]; ok {
		return v, true
	}
	v, ok := o.Globals[name]
	return v, ok
}
