package host

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Map / List
// ---------------------------------------------------------------------------

func TestMap_InsertionOrder(t *testing.T) {
	m := NewMap()
	m.Put("b", 1)
	m.Put("a", 2)
	m.Put("b", 3)

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	v, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	assert.Equal(t, 2, m.Remove("a"))
	assert.Equal(t, 1, m.Len())
}

func TestMap_Invoke(t *testing.T) {
	env := NewRuntime("test").NewEnv()
	m := MapOf(map[string]any{"x": int64(1), "y": "two"})

	entries, err := env.Call(m, "entries")
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"x", int64(1)}, []any{"y", "two"}}, entries)

	_, err = env.Call(m, "put", "z", true)
	require.NoError(t, err)
	has, err := env.Call(m, "containsKey", "z")
	require.NoError(t, err)
	assert.Equal(t, true, has)

	_, err = env.Call(m, "put", "only-key")
	assert.ErrorIs(t, err, ErrArguments)

	_, err = env.Call(m, "frobnicate")
	assert.ErrorIs(t, err, ErrNoSuchMethod)
}

func TestList_Invoke(t *testing.T) {
	env := NewRuntime("test").NewEnv()
	l := NewList()

	_, err := env.Call(l, "add", int64(2))
	require.NoError(t, err)
	v, err := env.Call(l, "get", int64(0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = env.Call(l, "get", int64(5))
	assert.ErrorIs(t, err, ErrArguments)
}

// ---------------------------------------------------------------------------
// GoObject
// ---------------------------------------------------------------------------

type counter struct {
	n    int
	seen *Env
}

func (c *counter) Incr(by int) int { c.n += by; return c.n }

func (c *counter) Where(env *Env) string {
	c.seen = env
	return env.String()
}

func (c *counter) Fail() error { return errors.New("refused") }

func (c *counter) Sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func TestGoObject_Invoke(t *testing.T) {
	env := NewRuntime("test").NewEnv()
	c := &counter{}
	obj := Wrap(c)

	assert.Equal(t, "Go::*host.counter", obj.ClassName())

	got, err := env.Call(obj, "incr", int64(5))
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	_, err = env.Call(obj, "where")
	require.NoError(t, err)
	assert.Same(t, env, c.seen)

	_, err = env.Call(obj, "fail")
	assert.EqualError(t, err, "refused")

	sum, err := env.Call(obj, "sum", []any{int64(1), int64(2), int64(3)})
	require.NoError(t, err)
	assert.Equal(t, 6, sum)

	_, err = env.Call(obj, "incr", "five")
	assert.ErrorIs(t, err, ErrArguments)

	assert.Equal(t, []string{"fail", "incr", "sum", "where"}, obj.(Describer).Methods())
}

func TestWrap_PassesObjectsThrough(t *testing.T) {
	m := NewMap()
	assert.Same(t, m, Wrap(m))
	assert.Nil(t, Wrap(nil))
}

func TestSameObject(t *testing.T) {
	a, b := NewMap(), NewMap()
	c := &counter{}

	assert.True(t, SameObject(a, a))
	assert.False(t, SameObject(a, b))
	assert.True(t, SameObject(Wrap(c), Wrap(c)))
	assert.False(t, SameObject(Wrap(c), Wrap(&counter{})))
	assert.True(t, SameObject(nil, nil))
	assert.False(t, SameObject(a, nil))
}

func TestEnv_CallRecoversPanics(t *testing.T) {
	env := NewRuntime("test").NewEnv()
	boom := &Func{Name: "boom", Fn: func(*Env, []any) (any, error) { panic("kaboom") }}

	_, err := env.Call(boom, "call")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

// ---------------------------------------------------------------------------
// RefTable
// ---------------------------------------------------------------------------

func TestRefTable_Lifecycle(t *testing.T) {
	rt := NewRuntime("test")
	env := rt.NewEnv()
	m := NewMap()

	ref := env.NewGlobalRef(m, "interp")
	require.NotZero(t, ref)
	assert.Equal(t, 1, rt.Refs().Len())

	obj, ok := rt.Refs().Lookup(ref)
	require.True(t, ok)
	assert.Same(t, m, obj)

	env.DeleteGlobalRef(ref)
	_, ok = rt.Refs().Lookup(ref)
	assert.False(t, ok)
	assert.Zero(t, env.NewGlobalRef(nil, "interp"))
}

func TestRefTable_ReleaseOwnerAndSweep(t *testing.T) {
	refs := NewRefTable()
	refs.Create(NewMap(), "a")
	refs.Create(NewMap(), "a")
	refs.Create(NewMap(), "b")

	assert.Equal(t, 2, refs.CountOwner("a"))
	assert.Equal(t, 2, refs.ReleaseOwner("a"))
	assert.Equal(t, 1, refs.Len())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, refs.Sweep(time.Millisecond))
	assert.Zero(t, refs.Len())
}
