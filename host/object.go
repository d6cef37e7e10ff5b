// Package host is the Go side of the bridge: the runtime handle, per-call
// execution contexts, and the objects scripts can hold and call into.
package host

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNoSuchMethod is returned by Invoke for an unknown method name.
	ErrNoSuchMethod = errors.New("no such method")

	// ErrArguments is returned by Invoke when arguments do not fit the method.
	ErrArguments = errors.New("bad arguments")
)

// Object is a host value that scripts can hold and call methods on.
//
// Invoke is called with the execution context of the calling thread.
// Implementations must not retain args beyond the call.
type Object interface {
	ClassName() string
	Invoke(env *Env, method string, args []any) (any, error)
}

// Describer is implemented by objects that can list their methods.
type Describer interface {
	Methods() []string
}

// SameObject reports whether a and b are the same host object.
// This is identity, not content equality.
func SameObject(a, b Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if g, ok := a.(*GoObject); ok {
		if h, ok := b.(*GoObject); ok {
			return g.sameTarget(h)
		}
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func noSuchMethod(obj Object, method string) error {
	return fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, obj.ClassName(), method)
}

func wantArgs(obj Object, method string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s.%s takes %d argument(s), got %d",
			ErrArguments, obj.ClassName(), method, n, len(args))
	}
	return nil
}

// Func adapts a Go function as a host object with a single "call" method.
type Func struct {
	Name string
	Fn   func(env *Env, args []any) (any, error)
}

func (f *Func) ClassName() string { return "Func" }

func (f *Func) Methods() []string { return []string{"call"} }

func (f *Func) Invoke(env *Env, method string, args []any) (any, error) {
	if method != "call" {
		return nil, noSuchMethod(f, method)
	}
	return f.Fn(env, args)
}
