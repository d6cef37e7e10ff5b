package capsule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

type payload struct{ n int }

func TestNew_RejectsNil(t *testing.T) {
	c, err := New(OwnerHost, TagObject, nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestUnwrap_Matching(t *testing.T) {
	p := &payload{n: 7}
	c, err := New(OwnerHost, TagObject, p)
	require.NoError(t, err)

	got, err := c.Unwrap(OwnerHost, TagObject)
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.True(t, c.Valid())
}

func TestUnwrap_Failures(t *testing.T) {
	p := &payload{}
	tests := []struct {
		name  string
		c     func() *Capsule
		owner Owner
		tag   string
		want  error
	}{
		{"nil capsule", func() *Capsule { return nil }, OwnerHost, TagObject, ErrEmpty},
		{"released", func() *Capsule {
			c, _ := New(OwnerHost, TagObject, p)
			c.Release()
			return c
		}, OwnerHost, TagObject, ErrEmpty},
		{"foreign owner", func() *Capsule {
			c, _ := New(OwnerInterp, TagObject, p)
			return c
		}, OwnerHost, TagObject, ErrForeign},
		{"wrong tag", func() *Capsule {
			c, _ := New(OwnerHost, TagEnv, p)
			return c
		}, OwnerHost, TagObject, ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.c().Unwrap(tt.owner, tt.tag)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestAs_ChecksGoType(t *testing.T) {
	c, err := New(OwnerHost, TagObject, &payload{n: 3})
	require.NoError(t, err)

	got, err := As[*payload](c, OwnerHost, TagObject)
	require.NoError(t, err)
	assert.Equal(t, 3, got.n)

	_, err = As[string](c, OwnerHost, TagObject)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestFromValue(t *testing.T) {
	c, err := New(OwnerHost, TagEnv, &payload{})
	require.NoError(t, err)

	back, err := FromValue(c)
	require.NoError(t, err)
	assert.Same(t, c, back)

	_, err = FromValue(starlark.String("nope"))
	assert.ErrorIs(t, err, ErrForeign)
}

func TestCapsule_StarlarkValue(t *testing.T) {
	c, err := New(OwnerHost, TagRuntime, &payload{})
	require.NoError(t, err)

	assert.Equal(t, "capsule", c.Type())
	assert.Equal(t, starlark.True, c.Truth())
	_, err = c.Hash()
	assert.Error(t, err)

	c.Release()
	assert.Equal(t, starlark.False, c.Truth())

	other, err := New(OwnerHost, TagRuntime, &payload{})
	require.NoError(t, err)
	assert.NotEqual(t, c.ID(), other.ID())
}
