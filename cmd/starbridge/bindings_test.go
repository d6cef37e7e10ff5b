package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/chazu/starbridge/bridge"
	"github.com/chazu/starbridge/host"
)

// ---------------------------------------------------------------------------
// Bindings files
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadBindings_Formats(t *testing.T) {
	encoded, err := cbor.Marshal(map[string]any{"name": "job", "retries": 3})
	require.NoError(t, err)

	tests := []struct {
		file string
		data []byte
	}{
		{"vars.toml", []byte("name = \"job\"\nretries = 3\n")},
		{"vars.yaml", []byte("name: job\nretries: 3\n")},
		{"vars.yml", []byte("name: job\nretries: 3\n")},
		{"vars.json", []byte(`{"name": "job", "retries": 3}`)},
		{"vars.cbor", encoded},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			m, err := loadBindings(writeFile(t, tt.file, tt.data))
			require.NoError(t, err)
			assert.Equal(t, []string{"name", "retries"}, m.Keys())

			name, _ := m.Get("name")
			assert.Equal(t, "job", name)
			retries, ok := m.Get("retries")
			assert.True(t, ok)
			assert.NotNil(t, retries)
		})
	}
}

func TestLoadBindings_Errors(t *testing.T) {
	m, err := loadBindings("")
	assert.Nil(t, m)
	assert.NoError(t, err)

	_, err = loadBindings(writeFile(t, "vars.ini", []byte("a=1")))
	assert.ErrorContains(t, err, "unsupported bindings format")

	_, err = loadBindings(writeFile(t, "vars.json", []byte("{")))
	assert.ErrorContains(t, err, "parse error")

	_, err = loadBindings(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "cannot read")
}

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"servers": []map[string]any{{"host": "a"}},
		"ports":   map[any]any{1: "one"},
		"tags":    []any{"x", map[any]any{"k": "v"}},
	}
	want := map[string]any{
		"servers": []any{map[string]any{"host": "a"}},
		"ports":   map[string]any{"1": "one"},
		"tags":    []any{"x", map[string]any{"k": "v"}},
	}
	assert.Equal(t, want, normalize(in))
}

func TestDumpOutcome(t *testing.T) {
	list := starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.String("two")})
	dict := starlark.NewDict(1)
	require.NoError(t, dict.SetKey(starlark.String("k"), starlark.True))

	out := &bridge.Outcome{
		Locals:  starlark.StringDict{"items": list, "cfg": dict, "none": starlark.None},
		Globals: starlark.StringDict{"pi": starlark.Float(3.5)},
	}
	text, err := dumpOutcome(out)
	require.NoError(t, err)
	for _, want := range []string{"locals:", "items:", "- 1", "- two", "k: true", "none: null", "globals:", "pi: 3.5"} {
		assert.Contains(t, text, want)
	}

	out.Aliased = true
	text, err = dumpOutcome(out)
	require.NoError(t, err)
	assert.NotContains(t, text, "globals:")
}

// ---------------------------------------------------------------------------
// Console session
// ---------------------------------------------------------------------------

func newTestSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	var printed, out bytes.Buffer
	rt := host.NewRuntime("console-test")
	b := bridge.New(rt, nil, bridge.WithOutput(&printed, &printed))
	return newSession(b, rt.NewEnv(), &out), &out
}

func TestSession_EvalKeepsBindings(t *testing.T) {
	s, out := newTestSession(t)

	for _, src := range []string{
		"x = 2",
		"x = x * 21",
		"x",
		"def add(n):\n    return n + x\n",
		"add(1)",
		"None",
	} {
		require.NoError(t, s.eval(src), src)
	}

	assert.Equal(t, "42\n43\n", out.String())
	x, _ := s.vars.Get("x")
	assert.Equal(t, int64(42), x)
}

func TestSession_TopLevelUpdatesStayVisible(t *testing.T) {
	s, out := newTestSession(t)

	require.NoError(t, s.eval("load('hostbridge', 'main')\nmain.level = 1"))
	require.NoError(t, s.eval("level"))
	require.NoError(t, s.eval("load('hostbridge', 'main')\nmain.level = 2"))
	require.NoError(t, s.eval("level"))

	assert.Equal(t, "1\n2\n", out.String())
	_, copied := s.vars.Get("level")
	assert.False(t, copied, "merged top-level names are not copied into the session")
}

func TestSession_EvalError(t *testing.T) {
	s, _ := newTestSession(t)

	assert.Error(t, s.eval("undefined_name + 1"))
	assert.NoError(t, s.eval("y = 1"), "session unusable after error")
}

func TestNeedsMore(t *testing.T) {
	tests := []struct {
		buf  []string
		want bool
	}{
		{nil, false},
		{[]string{"x = 1"}, false},
		{[]string{"def f():"}, true},
		{[]string{"def f():", "    return 1"}, true},
		{[]string{"def f():", "    return 1", ""}, false},
		{[]string{"x = 1 + \\"}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, needsMore(tt.buf), "%q", tt.buf)
	}
}

func TestSession_Commands(t *testing.T) {
	s, out := newTestSession(t)
	s.vars.Put("a", int64(1))

	assert.False(t, s.command(":vars"))
	assert.Contains(t, out.String(), "a = 1")

	s.command(":bogus")
	assert.Contains(t, out.String(), "unknown command :bogus")

	assert.True(t, s.command(":q"))
}
