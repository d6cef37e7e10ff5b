// Package capsule wraps a pointer from one runtime so it can travel through
// the other runtime as an inert value.
//
// A capsule records which side allocated the pointer and what kind of value
// it is. Only code that asks for the matching owner and tag gets the pointer
// back; anything else gets an error, never a bad dereference.
package capsule

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"go.starlark.net/starlark"
)

// Owner identifies the runtime that allocated a capsule's pointer.
type Owner uint8

const (
	OwnerUnknown Owner = iota
	OwnerHost
	OwnerInterp
)

func (o Owner) String() string {
	switch o {
	case OwnerHost:
		return "host"
	case OwnerInterp:
		return "interp"
	default:
		return "unknown"
	}
}

// Type tags used by the bridge.
const (
	TagRuntime = "host.runtime"
	TagEnv     = "host.env"
	TagObject  = "host.object"
)

var (
	// ErrEmpty is returned when unwrapping a nil or released capsule.
	ErrEmpty = errors.New("capsule is empty")

	// ErrForeign is returned when the capsule belongs to another runtime,
	// or the value is not a capsule at all.
	ErrForeign = errors.New("foreign capsule")

	// ErrTypeMismatch is returned when the capsule's tag or Go type does not
	// match what the caller expects.
	ErrTypeMismatch = errors.New("capsule type mismatch")
)

// Capsule is an ownership-tagged wrapper around one pointer.
// The capsule never frees what it points at.
type Capsule struct {
	id    uuid.UUID
	owner Owner
	tag   string

	mu  deadlock.Mutex
	ptr any
}

// New wraps ptr. A nil pointer cannot be encapsulated.
func New(owner Owner, tag string, ptr any) (*Capsule, error) {
	if ptr == nil {
		return nil, fmt.Errorf("%w: cannot encapsulate nil %s", ErrEmpty, tag)
	}
	return &Capsule{
		id:    uuid.New(),
		owner: owner,
		tag:   tag,
		ptr:   ptr,
	}, nil
}

func (c *Capsule) ID() uuid.UUID { return c.id }
func (c *Capsule) Owner() Owner  { return c.owner }
func (c *Capsule) Tag() string   { return c.tag }

// Valid reports whether the capsule still holds a pointer.
func (c *Capsule) Valid() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ptr != nil
}

// Unwrap returns the pointer if owner and tag match.
func (c *Capsule) Unwrap(owner Owner, tag string) (any, error) {
	if c == nil {
		return nil, ErrEmpty
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ptr == nil {
		return nil, fmt.Errorf("%w: %s capsule %s was released", ErrEmpty, c.tag, c.id)
	}
	if c.owner != owner {
		return nil, fmt.Errorf("%w: capsule %s is owned by %s, not %s", ErrForeign, c.id, c.owner, owner)
	}
	if c.tag != tag {
		return nil, fmt.Errorf("%w: want %q, capsule holds %q", ErrTypeMismatch, tag, c.tag)
	}
	return c.ptr, nil
}

// Release drops the pointer. Later unwraps fail with ErrEmpty.
func (c *Capsule) Release() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ptr = nil
	c.mu.Unlock()
}

// As unwraps c and asserts the pointer's Go type.
func As[T any](c *Capsule, owner Owner, tag string) (T, error) {
	var zero T
	ptr, err := c.Unwrap(owner, tag)
	if err != nil {
		return zero, err
	}
	v, ok := ptr.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s capsule holds %T", ErrTypeMismatch, tag, ptr)
	}
	return v, nil
}

// FromValue recovers a capsule passed through the interpreter.
func FromValue(v starlark.Value) (*Capsule, error) {
	c, ok := v.(*Capsule)
	if !ok {
		return nil, fmt.Errorf("%w: got %s, want capsule", ErrForeign, v.Type())
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// starlark.Value
// ---------------------------------------------------------------------------

var _ starlark.Value = (*Capsule)(nil)

func (c *Capsule) String() string {
	return fmt.Sprintf("<capsule %s owner=%s id=%s>", c.tag, c.owner, c.id)
}

func (c *Capsule) Type() string          { return "capsule" }
func (c *Capsule) Freeze()               {}
func (c *Capsule) Truth() starlark.Bool  { return starlark.Bool(c.Valid()) }
func (c *Capsule) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: capsule") }
