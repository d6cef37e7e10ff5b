package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[interpreter]
name = "embedded"
filename = "<host>"
recursion = false

[library]
preload = true
path = "/usr/lib/libstar.so"
probe = ["starbridge-probe", "--libdir"]
conflicts = ["msvcr90.dll", "msvcr100.dll"]

[log]
verbosity = 2
file = "bridge.log"
`)

	c, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "embedded", c.Interpreter.Name)
	assert.Equal(t, "<host>", c.Interpreter.Filename)
	assert.False(t, c.Interpreter.Recursion)
	assert.True(t, c.Interpreter.While, "while keeps its default")

	assert.True(t, c.Library.Preload)
	assert.Equal(t, "/usr/lib/libstar.so", c.Library.Path)
	assert.Equal(t, []string{"starbridge-probe", "--libdir"}, c.Library.Probe)
	assert.Equal(t, []string{"msvcr90.dll", "msvcr100.dll"}, c.Library.Conflicts)

	assert.Equal(t, 2, c.Log.Verbosity)
	assert.Equal(t, "bridge.log", c.Log.File)

	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, c.Dir)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[log]
verbosity = 1
`)

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "starbridge", c.Interpreter.Name)
	assert.False(t, c.Library.Preload)
	assert.Equal(t, []string{"msvcr90.dll"}, c.Library.Conflicts)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty name", "[interpreter]\nname = \"\"\n"},
		{"verbosity", "[log]\nverbosity = 9\n"},
		{"blank probe arg", "[library]\nprobe = [\"probe\", \"\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadConfigParseError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[interpreter\n")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[interpreter]\nname = \"found\"\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	c, err := FindAndLoad(nested)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "found", c.Interpreter.Name)
}

func TestFindAndLoadNone(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	c.ApplyEnv(func(key string) (string, bool) {
		if key == EnvLibrary {
			return "/opt/lib/libstar.so", true
		}
		return "", false
	})
	assert.Equal(t, "/opt/lib/libstar.so", c.Library.Path)
	assert.True(t, c.Library.Preload)

	c = Default()
	c.ApplyEnv(func(string) (string, bool) { return "", true })
	assert.False(t, c.Library.Preload, "empty override enabled preload")
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc), "schema is not JSON")
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "schema has no properties: %s", data)
	for _, section := range []string{"interpreter", "library", "log"} {
		assert.Contains(t, props, section)
	}
	assert.Equal(t, FileName, doc["title"])
}
