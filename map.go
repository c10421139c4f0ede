// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"fmt"
	"iter"
	"slices"
)

// Map is a mapping from string keys to values that remembers insertion order.
//
// A Map may carry a default: [Map.Fetch] returns DefaultFunc's result, or Default,
// for keys that are not present. Copies keep the default.
//
// The zero value is an empty map ready to use.
type Map struct {
	// Default is returned by Fetch for missing keys when DefaultFunc is nil.
	Default any
	// DefaultFunc, if set, computes the value Fetch returns for a missing key.
	DefaultFunc func(m *Map, key string) any

	keys   []string
	values map[string]any
}

// NewMap returns an empty map with room for size keys.
func NewMap(size int) *Map {
	return &Map{
		keys:   make([]string, 0, size),
		values: make(map[string]any, size),
	}
}

// MapOf builds a map from alternating keys and values:
//
//	MapOf("name", "web", "port", 80)
//
// It panics if a key is not a string or a value is missing.
func MapOf(kv ...any) *Map {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("deepmerge.MapOf: odd number of arguments (%d)", len(kv)))
	}
	m := NewMap(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("deepmerge.MapOf: key at position %d is %T, not string", i, kv[i]))
		}
		m.Set(key, kv[i+1])
	}
	return m
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Fetch returns the value stored under key, or the map's default if there is none.
func (m *Map) Fetch(key string) any {
	if v, ok := m.Get(key); ok {
		return v
	}
	if m == nil {
		return nil
	}
	if m.DefaultFunc != nil {
		return m.DefaultFunc(m, key)
	}
	return m.Default
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. New keys go to the end; existing keys keep their position.
func (m *Map) Set(key string, v any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if _, ok := m.Get(key); !ok {
		return false
	}
	delete(m.values, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
	return true
}

// Clear removes all keys. The default is kept.
func (m *Map) Clear() {
	m.keys = m.keys[:0]
	clear(m.values)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// All iterates over the entries in insertion order.
// Keys added during iteration are not visited.
func (m *Map) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if m == nil {
			return
		}
		for _, key := range slices.Clone(m.keys) {
			v, ok := m.values[key]
			if !ok {
				continue
			}
			if !yield(key, v) {
				return
			}
		}
	}
}

// String formats the map like a Go map literal, in insertion order.
// A map reached again through a cycle prints as <cycle>.
func (m *Map) String() string {
	return string(appendValue(nil, m, nil))
}

func appendValue(buf []byte, v any, stack []any) []byte {
	switch v := v.(type) {
	case *Map:
		if v == nil {
			return append(buf, "map[]"...)
		}
		if slices.Contains(stack, any(v)) {
			return append(buf, "<cycle>"...)
		}
		stack = append(stack, v)
		buf = append(buf, "map["...)
		for i, key := range v.keys {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendValue(append(append(buf, key...), ':'), v.values[key], stack)
		}
		return append(buf, ']')
	case *List:
		if v == nil {
			return append(buf, "[]"...)
		}
		if slices.Contains(stack, any(v)) {
			return append(buf, "<cycle>"...)
		}
		stack = append(stack, v)
		buf = append(buf, '[')
		for i, item := range v.items {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendValue(buf, item, stack)
		}
		return append(buf, ']')
	default:
		return fmt.Append(buf, v)
	}
}

// DeepCopy implements [DeepCopier].
func (m *Map) DeepCopy(c *Copier) any {
	if m == nil {
		return m
	}
	out := NewMap(len(m.keys))
	out.Default = m.Default
	out.DefaultFunc = m.DefaultFunc
	c.Register(m, out)
	for _, key := range m.keys {
		out.Set(key, c.Copy(m.values[key]))
	}
	return out
}

// CanMerge implements [Mergeable]: other must be convertible to a map.
func (m *Map) CanMerge(other any) bool {
	if m == nil {
		return false
	}
	_, ok := asMap(other)
	return ok
}

// MergeFrom implements [Mergeable].
func (m *Map) MergeFrom(mg *Merger, other any) error {
	return mg.mergeMap(m, other)
}
