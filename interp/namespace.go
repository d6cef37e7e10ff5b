package interp

import (
	"fmt"
	"sort"
	"sync/atomic"

	"go.starlark.net/starlark"
)

// Namespace is a string-keyed binding table a script executes against.
//
// Namespaces are shared by count: Retain adds an owner, Release drops one,
// and the last Release drops every binding so nothing it referenced stays
// reachable through it.
type Namespace struct {
	name   string
	dict   *starlark.Dict
	refs   atomic.Int32
	frozen bool
}

// NewNamespace creates an empty namespace with one owner.
func NewNamespace(name string) *Namespace {
	ns := &Namespace{name: name, dict: starlark.NewDict(8)}
	ns.refs.Store(1)
	return ns
}

// NamespaceFromMapping builds a namespace from a Starlark mapping value.
// Keys must be strings.
func NamespaceFromMapping(name string, v starlark.Value) (*Namespace, error) {
	switch m := v.(type) {
	case *Namespace:
		return m.Retain(), nil
	case starlark.IterableMapping:
		ns := NewNamespace(name)
		for _, item := range m.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("namespace %s: key %s is %s, want string", name, item[0], item[0].Type())
			}
			if err := ns.Set(key, item[1]); err != nil {
				return nil, err
			}
		}
		return ns, nil
	}
	return nil, fmt.Errorf("namespace %s: got %s, want a mapping", name, v.Type())
}

func (ns *Namespace) Name() string { return ns.name }

// Retain adds an owner and returns ns.
func (ns *Namespace) Retain() *Namespace {
	ns.refs.Add(1)
	return ns
}

// Release drops an owner. The last release clears the bindings.
func (ns *Namespace) Release() {
	if ns.refs.Add(-1) == 0 && !ns.frozen {
		_ = ns.dict.Clear()
	}
}

// Refs returns the current owner count.
func (ns *Namespace) Refs() int32 { return ns.refs.Load() }

func (ns *Namespace) Get(name string) (starlark.Value, bool) {
	v, found, err := ns.dict.Get(starlark.String(name))
	if err != nil || !found {
		return nil, false
	}
	return v, true
}

func (ns *Namespace) Set(name string, v starlark.Value) error {
	if err := ns.dict.SetKey(starlark.String(name), v); err != nil {
		return fmt.Errorf("namespace %s: %w", ns.name, err)
	}
	return nil
}

func (ns *Namespace) Delete(name string) {
	_, _, _ = ns.dict.Delete(starlark.String(name))
}

func (ns *Namespace) Len() int { return ns.dict.Len() }

// Keys returns the bound names in insertion order.
func (ns *Namespace) Keys() []string {
	keys := ns.dict.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		s, _ := starlark.AsString(k)
		out = append(out, s)
	}
	return out
}

// Snapshot copies the bindings.
func (ns *Namespace) Snapshot() starlark.StringDict {
	out := make(starlark.StringDict, ns.dict.Len())
	for _, item := range ns.dict.Items() {
		s, _ := starlark.AsString(item[0])
		out[s] = item[1]
	}
	return out
}

// Merge copies src's bindings into ns. Without override, names already bound
// in ns keep their values.
func (ns *Namespace) Merge(src *Namespace, override bool) error {
	if src == nil || src == ns {
		return nil
	}
	for _, item := range src.dict.Items() {
		name, _ := starlark.AsString(item[0])
		if !override {
			if _, exists := ns.Get(name); exists {
				continue
			}
		}
		if err := ns.Set(name, item[1]); err != nil {
			return fmt.Errorf("merge %s into %s: %w", src.name, ns.name, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// starlark.Value: scripts read and assign bindings as attributes.
// ---------------------------------------------------------------------------

var (
	_ starlark.HasAttrs    = (*Namespace)(nil)
	_ starlark.HasSetField = (*Namespace)(nil)
)

func (ns *Namespace) String() string { return fmt.Sprintf("<namespace %s>", ns.name) }
func (ns *Namespace) Type() string   { return "namespace" }

func (ns *Namespace) Freeze() {
	ns.frozen = true
	ns.dict.Freeze()
}

func (ns *Namespace) Truth() starlark.Bool  { return ns.dict.Len() > 0 }
func (ns *Namespace) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: namespace") }

func (ns *Namespace) Attr(name string) (starlark.Value, error) {
	v, ok := ns.Get(name)
	if !ok {
		return nil, starlark.NoSuchAttrError(fmt.Sprintf("namespace %s has no binding %q", ns.name, name))
	}
	return v, nil
}

func (ns *Namespace) AttrNames() []string {
	names := ns.Keys()
	sort.Strings(names)
	return names
}

func (ns *Namespace) SetField(name string, v starlark.Value) error {
	return ns.Set(name, v)
}
