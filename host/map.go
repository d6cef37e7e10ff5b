package host

import (
	"fmt"
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   string
	Value any
}

// Map is an insertion-ordered, string-keyed container. It is the host-side
// source for the namespaces a script runs in. Two *Map values are the same
// object only if they are the same pointer.
type Map struct {
	mu    deadlock.RWMutex
	order []string
	m     map[string]any
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{m: make(map[string]any)}
}

// MapOf creates a map from kv, with keys in sorted order.
func MapOf(kv map[string]any) *Map {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := NewMap()
	for _, k := range keys {
		m.Put(k, kv[k])
	}
	return m
}

// Put stores v under k and returns the previous value.
func (m *Map) Put(k string, v any) any {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.m[k]
	if !ok {
		m.order = append(m.order, k)
	}
	m.m[k] = v
	return prev
}

// Get returns the value stored under k.
func (m *Map) Get(k string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

// Remove deletes k and returns the removed value.
func (m *Map) Remove(k string) any {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.m[k]
	if !ok {
		return nil
	}
	delete(m.m, k)
	for i, key := range m.order {
		if key == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return v
}

// Clear removes every entry.
func (m *Map) Clear() {
	m.mu.Lock()
	m.order = nil
	m.m = make(map[string]any)
	m.mu.Unlock()
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Entries returns a snapshot of the entries in insertion order.
func (m *Map) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, Entry{Key: k, Value: m.m[k]})
	}
	return out
}

func (m *Map) ClassName() string { return "Map" }

func (m *Map) Methods() []string {
	return []string{"clear", "containsKey", "entries", "get", "keys", "put", "remove", "size"}
}

// Invoke exposes the map to scripts. entries returns [key, value] pairs.
func (m *Map) Invoke(env *Env, method string, args []any) (any, error) {
	switch method {
	case "get":
		if err := wantArgs(m, method, args, 1); err != nil {
			return nil, err
		}
		v, _ := m.Get(keyString(args[0]))
		return v, nil
	case "put":
		if err := wantArgs(m, method, args, 2); err != nil {
			return nil, err
		}
		return m.Put(keyString(args[0]), args[1]), nil
	case "remove":
		if err := wantArgs(m, method, args, 1); err != nil {
			return nil, err
		}
		return m.Remove(keyString(args[0])), nil
	case "containsKey":
		if err := wantArgs(m, method, args, 1); err != nil {
			return nil, err
		}
		_, ok := m.Get(keyString(args[0]))
		return ok, nil
	case "size":
		return m.Len(), nil
	case "clear":
		m.Clear()
		return nil, nil
	case "keys":
		keys := m.Keys()
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	case "entries":
		entries := m.Entries()
		out := make([]any, len(entries))
		for i, e := range entries {
			out[i] = []any{e.Key, e.Value}
		}
		return out, nil
	}
	return nil, noSuchMethod(m, method)
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

// List is an ordered host container.
type List struct {
	mu    deadlock.RWMutex
	items []any
}

// NewList creates a list holding items.
func NewList(items ...any) *List {
	return &List{items: append([]any(nil), items...)}
}

func (l *List) Add(v any) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

func (l *List) Get(i int) (any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.items) {
		return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrArguments, i, len(l.items))
	}
	return l.items[i], nil
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Items returns a copy of the list contents.
func (l *List) Items() []any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]any(nil), l.items...)
}

func (l *List) ClassName() string { return "List" }

func (l *List) Methods() []string { return []string{"add", "get", "items", "size"} }

func (l *List) Invoke(env *Env, method string, args []any) (any, error) {
	switch method {
	case "add":
		if err := wantArgs(l, method, args, 1); err != nil {
			return nil, err
		}
		l.Add(args[0])
		return true, nil
	case "get":
		if err := wantArgs(l, method, args, 1); err != nil {
			return nil, err
		}
		i, ok := toInt(args[0])
		if !ok {
			return nil, fmt.Errorf("%w: List.get index must be an integer, got %T", ErrArguments, args[0])
		}
		return l.Get(i)
	case "size":
		return l.Len(), nil
	case "items":
		return l.Items(), nil
	}
	return nil, noSuchMethod(l, method)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	}
	return 0, false
}
