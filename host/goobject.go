package host

import (
	"fmt"
	"reflect"
	"sort"
	"unicode"
	"unicode/utf8"
)

var (
	envType   = reflect.TypeOf((*Env)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// GoObject exposes an arbitrary Go value's exported methods to scripts.
//
// A method whose first parameter is *Env receives the calling context.
// A trailing error result is returned as the call's error.
type GoObject struct {
	value any
	rv    reflect.Value
}

// Wrap returns v as a host object. Values that already implement Object are
// returned unchanged; nil stays nil.
func Wrap(v any) Object {
	if v == nil {
		return nil
	}
	if obj, ok := v.(Object); ok {
		return obj
	}
	return &GoObject{value: v, rv: reflect.ValueOf(v)}
}

// Value returns the wrapped Go value.
func (g *GoObject) Value() any { return g.value }

func (g *GoObject) ClassName() string {
	return "Go::" + g.rv.Type().String()
}

// Methods lists the exported methods with a lower-case first letter, the
// way scripts spell them.
func (g *GoObject) Methods() []string {
	t := g.rv.Type()
	names := make([]string, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		names = append(names, scriptName(t.Method(i).Name))
	}
	sort.Strings(names)
	return names
}

func (g *GoObject) Invoke(env *Env, method string, args []any) (any, error) {
	m := g.method(method)
	if !m.IsValid() {
		return nil, noSuchMethod(g, method)
	}
	mt := m.Type()
	if mt.IsVariadic() {
		return nil, fmt.Errorf("%w: %s.%s is variadic", ErrArguments, g.ClassName(), method)
	}

	var in []reflect.Value
	offset := 0
	if mt.NumIn() > 0 && mt.In(0) == envType {
		in = append(in, reflect.ValueOf(env))
		offset = 1
	}
	if len(args) != mt.NumIn()-offset {
		return nil, fmt.Errorf("%w: %s.%s takes %d argument(s), got %d",
			ErrArguments, g.ClassName(), method, mt.NumIn()-offset, len(args))
	}
	for i, arg := range args {
		v, err := convertArg(arg, mt.In(i+offset))
		if err != nil {
			return nil, fmt.Errorf("%s.%s argument %d: %w", g.ClassName(), method, i+1, err)
		}
		in = append(in, v)
	}

	return results(m.Call(in))
}

func (g *GoObject) method(name string) reflect.Value {
	if m := g.rv.MethodByName(name); m.IsValid() {
		return m
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return reflect.Value{}
	}
	return g.rv.MethodByName(string(unicode.ToUpper(r)) + name[size:])
}

func (g *GoObject) sameTarget(h *GoObject) bool {
	if g.rv.Type() != h.rv.Type() {
		return false
	}
	switch g.rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return g.rv.Pointer() == h.rv.Pointer()
	case reflect.Slice:
		return g.rv.Pointer() == h.rv.Pointer() && g.rv.Len() == h.rv.Len()
	}
	if g.rv.Type().Comparable() {
		return g.value == h.value
	}
	return false
}

func scriptName(goName string) string {
	r, size := utf8.DecodeRuneInString(goName)
	return string(unicode.ToLower(r)) + goName[size:]
}

func convertArg(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: cannot pass nil as %s", ErrArguments, t)
	}
	if g, ok := arg.(*GoObject); ok && g.rv.Type().AssignableTo(t) {
		return g.rv, nil
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumber(v.Kind()) && isNumber(t.Kind()) {
		return v.Convert(t), nil
	}
	if v.Kind() == reflect.String && t.Kind() == reflect.String {
		return v.Convert(t), nil
	}
	if items, ok := arg.([]any); ok && t.Kind() == reflect.Slice {
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			ev, err := convertArg(item, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %T as %s", ErrArguments, arg, t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func results(out []reflect.Value) (any, error) {
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if !out[n-1].IsNil() {
			return nil, out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}
