package support

import (
	"fmt"

	"go.starlark.net/starlark"
)

// makeMapping copies a proxied foreign map into a script dict. The map is
// read through its "entries" method, which yields [key, value] pairs; keys
// are stringified.
func (l *Library) makeMapping(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var p *Proxy
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &p); err != nil {
		return nil, err
	}
	env, err := l.Env()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	raw, err := env.Call(p.obj, "entries")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: %s.entries returned %T", b.Name(), p.obj.ClassName(), raw)
	}

	d := starlark.NewDict(len(entries))
	for i, e := range entries {
		pair, ok := e.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%s: entry %d is not a [key, value] pair", b.Name(), i)
		}
		v, err := l.ToStarlark(env, pair[1])
		if err != nil {
			return nil, fmt.Errorf("%s: key %v: %w", b.Name(), pair[0], err)
		}
		if err := d.SetKey(starlark.String(fmt.Sprint(pair[0])), v); err != nil {
			return nil, err
		}
	}
	return d, nil
}
