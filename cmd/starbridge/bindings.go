package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"

	"github.com/chazu/starbridge/bridge"
	"github.com/chazu/starbridge/host"
)

// loadBindings reads a bindings file into a host map. The format follows the
// file extension. An empty path yields nil.
func loadBindings(path string) (*host.Map, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".cbor":
		err = cbor.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%s: unsupported bindings format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	return host.MapOf(normalize(raw).(map[string]any)), nil
}

// normalize reduces decoded values to the shapes the bridge converts
// directly: map[string]any, []any and scalars.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

// dumpOutcome renders both namespaces as YAML.
func dumpOutcome(out *bridge.Outcome) (string, error) {
	doc := map[string]any{"locals": plainDict(out.Locals)}
	if !out.Aliased {
		doc["globals"] = plainDict(out.Globals)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("dump: %w", err)
	}
	return string(data), nil
}

func plainDict(d starlark.StringDict) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = plain(v)
	}
	return out
}

// plain converts a script value to data YAML can hold. Values with no data
// form print as their string representation.
func plain(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case starlark.Bytes:
		return string(x)
	case *starlark.List:
		return plainSeq(x)
	case starlark.Tuple:
		return plainSeq(x)
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			out[key] = plain(item[1])
		}
		return out
	}
	return v.String()
}

func plainSeq(seq starlark.Indexable) []any {
	out := make([]any, seq.Len())
	for i := range out {
		out[i] = plain(seq.Index(i))
	}
	return out
}
