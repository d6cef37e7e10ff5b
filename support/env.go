package support

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/chazu/starbridge/capsule"
	"github.com/chazu/starbridge/host"
)

// EnvValue is a host execution context as scripts see it.
type EnvValue struct {
	lib *Library
	env *host.Env
}

var _ starlark.HasAttrs = (*EnvValue)(nil)

// Env returns the wrapped context.
func (e *EnvValue) Env() *host.Env { return e.env }

func (e *EnvValue) String() string        { return fmt.Sprintf("<env %s>", e.env) }
func (e *EnvValue) Type() string          { return "env" }
func (e *EnvValue) Freeze()               {}
func (e *EnvValue) Truth() starlark.Bool  { return starlark.True }
func (e *EnvValue) Hash() (uint32, error) { return uint32(e.env.ID()), nil }

func (e *EnvValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case FnMakeProxy:
		return starlark.NewBuiltin(FnMakeProxy, e.makeProxy), nil
	case "id":
		return starlark.MakeUint64(e.env.ID()), nil
	case "runtime":
		return starlark.String(e.env.Runtime().Name()), nil
	}
	return nil, nil
}

func (e *EnvValue) AttrNames() []string {
	return []string{"id", FnMakeProxy, "runtime"}
}

// makeProxy turns an encapsulated host object into a proxy pinned through
// this context.
func (e *EnvValue) makeProxy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	obj, err := unwrap[host.Object](v, capsule.TagObject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return NewProxy(e.lib, e.env, obj), nil
}
