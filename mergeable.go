// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"cmp"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/goccy/go-yaml"
)

// Mergeable is implemented by values that can absorb another value in place.
//
// When a merge finds a key present in both target and incoming, it asks the existing
// value whether it CanMerge the incoming one. If so, MergeFrom is called and the
// existing value stays in place; otherwise the incoming value replaces it.
// [Map] and [List] implement Mergeable; so may user-defined types.
//
// Implementations should use [Merger.Combine] for nested values. Errors returned by
// MergeFrom are passed to the caller unchanged.
type Mergeable interface {
	CanMerge(other any) bool
	MergeFrom(m *Merger, other any) error
}

// MapConverter is implemented by values that can present themselves as a [Map].
// Such values are accepted wherever a map is merged.
type MapConverter interface {
	ToMap() *Map
}

// ListConverter is implemented by values that can present themselves as a [List].
// Such values are accepted wherever a list is merged.
type ListConverter interface {
	ToList() *List
}

// asMap normalizes v to a map. Native maps are wrapped without copying their values;
// map[string]any keys are sorted since Go maps have no order.
func asMap(v any) (*Map, bool) {
	switch v := v.(type) {
	case nil:
		return nil, false
	case *Map:
		return v, v != nil
	case MapConverter:
		if isNil(v) {
			return nil, false
		}
		m := v.ToMap()
		return m, m != nil
	case map[string]any:
		m := NewMap(len(v))
		for _, key := range slices.Sorted(maps.Keys(v)) {
			m.Set(key, v[key])
		}
		return m, true
	case yaml.MapSlice:
		m := NewMap(len(v))
		for _, item := range v {
			m.Set(keyString(item.Key), item.Value)
		}
		return m, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	type entry struct {
		key   string
		value any
	}
	entries := make([]entry, 0, rv.Len())
	for it := rv.MapRange(); it.Next(); {
		entries = append(entries, entry{it.Key().String(), it.Value().Interface()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.key, b.key) })
	m := NewMap(len(entries))
	for _, e := range entries {
		m.Set(e.key, e.value)
	}
	return m, true
}

// asList normalizes v to a list. Native slices are wrapped without copying their items.
func asList(v any) (*List, bool) {
	switch v := v.(type) {
	case nil:
		return nil, false
	case *List:
		return v, v != nil
	case ListConverter:
		if isNil(v) {
			return nil, false
		}
		l := v.ToList()
		return l, l != nil
	case []any:
		return &List{items: v}, true
	case yaml.MapSlice, []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return &List{items: items}, true
	default:
		return nil, false
	}
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

// isNil reports whether v is nil or an interface holding a nil reference.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// FromNative converts decoded documents into [Map] and [List] trees.
//
// Maps with string keys (map[string]any, yaml.MapSlice, and other string-keyed map
// types) become *Map; slices and arrays other than []byte become *List. yaml.MapSlice
// keeps its order, other maps are sorted by key. Existing *Map and *List values are
// rebuilt too, so the result shares no containers with v. Cycles and shared
// references are preserved. Other values are returned as they are.
func FromNative(v any) any {
	var c converter
	out, _ := scoped(&c.seen, func() (any, error) {
		return c.fromNative(v), nil
	})
	return out
}

// ToNative converts [Map] and [List] trees back to map[string]any and []any, for
// encoders that do not understand them. Cycles and shared references are preserved.
func ToNative(v any) any {
	var c converter
	out, _ := scoped(&c.seen, func() (any, error) {
		return c.toNative(v), nil
	})
	return out
}

type converter struct {
	seen tracker
}

func (c *converter) fromNative(v any) any {
	if prev, ok := c.seen.lookup(v); ok {
		return prev
	}
	if m, ok := asMap(v); ok {
		out := NewMap(m.Len())
		if src, isMap := v.(*Map); isMap {
			out.Default = src.Default
			out.DefaultFunc = src.DefaultFunc
		}
		c.seen.record(v, out)
		for key, value := range m.All() {
			out.Set(key, c.fromNative(value))
		}
		return out
	}
	if l, ok := asList(v); ok {
		out := &List{items: make([]any, l.Len())}
		c.seen.record(v, out)
		for i, item := range l.items {
			out.items[i] = c.fromNative(item)
		}
		return out
	}
	return v
}

func (c *converter) toNative(v any) any {
	if prev, ok := c.seen.lookup(v); ok {
		return prev
	}
	switch v := v.(type) {
	case *Map:
		if v == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, v.Len())
		c.seen.record(v, out)
		for key, value := range v.All() {
			out[key] = c.toNative(value)
		}
		return out
	case *List:
		if v == nil {
			return []any(nil)
		}
		out := make([]any, v.Len())
		c.seen.record(v, out)
		for i, item := range v.items {
			out[i] = c.toNative(item)
		}
		return out
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		c.seen.record(v, out)
		for key, value := range v {
			out[key] = c.toNative(value)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		c.seen.record(v, out)
		for i, item := range v {
			out[i] = c.toNative(item)
		}
		return out
	default:
		return v
	}
}
