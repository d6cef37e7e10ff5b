package support

import (
	"fmt"
	"math/big"
	"sort"

	"go.starlark.net/starlark"

	"github.com/chazu/starbridge/host"
)

// ToStarlark converts a host value for use by a script. Host objects and any
// Go value without a direct counterpart become proxies pinned through env.
func (l *Library) ToStarlark(env *host.Env, v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case *ScriptValue:
		return x.v, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int8:
		return starlark.MakeInt64(int64(x)), nil
	case int16:
		return starlark.MakeInt64(int64(x)), nil
	case int32:
		return starlark.MakeInt64(int64(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint:
		return starlark.MakeUint(x), nil
	case uint8:
		return starlark.MakeUint64(uint64(x)), nil
	case uint16:
		return starlark.MakeUint64(uint64(x)), nil
	case uint32:
		return starlark.MakeUint64(uint64(x)), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case *big.Int:
		return starlark.MakeBigInt(x), nil
	case float32:
		return starlark.Float(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []byte:
		return starlark.Bytes(x), nil
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			sv, err := l.ToStarlark(env, e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(x))
		for _, k := range keys {
			sv, err := l.ToStarlark(env, x[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	if env == nil {
		return nil, fmt.Errorf("cannot convert %T without a host context", v)
	}
	return NewProxy(l, env, host.Wrap(v)), nil
}

// FromStarlark converts a script value for host code. Lists and dicts are
// copied; proxies give back their host object; anything else stays opaque
// as a ScriptValue.
func (l *Library) FromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		return x.BigInt(), nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Bytes:
		return []byte(x), nil
	case *Proxy:
		return x.obj, nil
	case *starlark.List:
		return l.fromSequence(x)
	case starlark.Tuple:
		return l.fromSequence(x)
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s is %s, want string", item[0], item[0].Type())
			}
			gv, err := l.FromStarlark(item[1])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = gv
		}
		return out, nil
	}
	return &ScriptValue{lib: l, v: v}, nil
}

func (l *Library) fromSequence(seq starlark.Indexable) ([]any, error) {
	out := make([]any, seq.Len())
	for i := range out {
		gv, err := l.FromStarlark(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = gv
	}
	return out, nil
}

// Hold converts primitives like FromStarlark and keeps everything else as
// the same script value, so writing it back later restores the original.
func (l *Library) Hold(v starlark.Value) any {
	switch v.(type) {
	case starlark.NoneType, starlark.Bool, starlark.Int, starlark.Float, starlark.String, starlark.Bytes, *Proxy:
		gv, _ := l.FromStarlark(v)
		return gv
	}
	return &ScriptValue{lib: l, v: v}
}

// ScriptValue is a script value held by host code. Calling it re-enters the
// interpreter under the execution lock.
type ScriptValue struct {
	lib *Library
	v   starlark.Value
}

var _ host.Object = (*ScriptValue)(nil)

// Value returns the held script value.
func (s *ScriptValue) Value() starlark.Value { return s.v }

func (s *ScriptValue) String() string { return s.v.String() }

func (s *ScriptValue) ClassName() string { return "Script::" + s.v.Type() }

// Invoke calls the value itself for "call", otherwise the named method.
func (s *ScriptValue) Invoke(env *host.Env, method string, args []any) (any, error) {
	in := s.lib.in
	in.Lock().Ensure()
	defer in.Lock().Release()

	s.lib.push(env)
	defer func() { _, _ = s.lib.pop() }()

	sargs := make([]starlark.Value, len(args))
	for i, a := range args {
		sv, err := s.lib.ToStarlark(env, a)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: argument %d: %w", s.ClassName(), method, i, err)
		}
		sargs[i] = sv
	}

	var (
		result starlark.Value
		err    error
	)
	if _, callable := s.v.(starlark.Callable); callable && method == "call" {
		result, err = in.Call(s.v, sargs...)
	} else {
		result, err = in.CallMethod(s.v, method, sargs...)
	}
	if err != nil {
		in.Clear()
		return nil, err
	}
	return s.lib.FromStarlark(result)
}
