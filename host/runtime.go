package host

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Runtime is the process-wide host handle handed to the interpreter once,
// at bridge initialization. Scripts use it to obtain execution contexts on
// demand.
type Runtime struct {
	id      uuid.UUID
	name    string
	refs    *RefTable
	nextEnv atomic.Uint64
}

// NewRuntime creates a runtime handle.
func NewRuntime(name string) *Runtime {
	return &Runtime{
		id:   uuid.New(),
		name: name,
		refs: NewRefTable(),
	}
}

func (rt *Runtime) ID() uuid.UUID   { return rt.id }
func (rt *Runtime) Name() string    { return rt.name }
func (rt *Runtime) Refs() *RefTable { return rt.refs }
func (rt *Runtime) String() string  { return fmt.Sprintf("runtime %s (%s)", rt.name, rt.id) }

// NewEnv creates an execution context for one thread of host code.
func (rt *Runtime) NewEnv() *Env {
	return &Env{
		rt:      rt,
		id:      rt.nextEnv.Add(1),
		created: time.Now(),
	}
}

// Env is a host execution context. A caller passes its Env into every
// cross-call; the bridge registers it with the interpreter for the call's
// duration.
type Env struct {
	rt      *Runtime
	id      uint64
	created time.Time
}

func (e *Env) Runtime() *Runtime { return e.rt }
func (e *Env) ID() uint64        { return e.id }

func (e *Env) String() string {
	return fmt.Sprintf("env-%d@%s", e.id, e.rt.name)
}

// Call invokes a method on obj, turning a panic in host code into an error.
func (e *Env) Call(obj Object, method string, args ...any) (result any, err error) {
	if obj == nil {
		return nil, fmt.Errorf("call %s on nil object", method)
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%s.%s panicked: %v", obj.ClassName(), method, r)
		}
	}()
	return obj.Invoke(e, method, args)
}

// IsSameObject reports host identity of two objects.
func (e *Env) IsSameObject(a, b Object) bool {
	return SameObject(a, b)
}

// NewGlobalRef pins obj in the runtime's reference table on behalf of owner.
func (e *Env) NewGlobalRef(obj Object, owner string) Ref {
	return e.rt.refs.Create(obj, owner)
}

// DeleteGlobalRef releases a reference made with NewGlobalRef.
func (e *Env) DeleteGlobalRef(ref Ref) {
	e.rt.refs.Release(ref)
}
