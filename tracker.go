// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"reflect"
	"unsafe"
)

// identity distinguishes one heap object from another regardless of content.
// Slices also record their length, since two slices may share a backing array.
type identity struct {
	ptr unsafe.Pointer
	typ reflect.Type
	len int
}

// identityOf returns the identity of v if v refers to a heap object.
// Scalars, nil references, empty slices and pointers to zero-size values have no
// identity; the runtime may give distinct zero-size objects the same address.
func identityOf(v any) (identity, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || rv.Type().Elem().Size() == 0 {
			return identity{}, false
		}
		return identity{ptr: rv.UnsafePointer(), typ: rv.Type()}, true
	case reflect.Map:
		if rv.IsNil() {
			return identity{}, false
		}
		return identity{ptr: rv.UnsafePointer(), typ: rv.Type()}, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return identity{}, false
		}
		return identity{ptr: rv.UnsafePointer(), typ: rv.Type(), len: rv.Len()}, true
	default:
		return identity{}, false
	}
}

// tracker records the objects seen by one top-level call and every call nested in it.
//
// The table exists only while depth is positive. It is created when the outermost
// call enters and dropped when that call returns, so unrelated calls never observe
// each other's entries.
type tracker struct {
	depth int
	seen  map[identity]any
}

// scoped runs fn inside t. All access to the table happens within scoped.
func scoped[T any](t *tracker, fn func() (T, error)) (T, error) {
	t.enter()
	defer t.exit()
	return fn()
}

func (t *tracker) enter() {
	if t.depth == 0 {
		t.seen = make(map[identity]any)
	}
	t.depth++
}

func (t *tracker) exit() {
	t.depth--
	if t.depth == 0 {
		t.seen = nil
	}
}

// lookup returns what was recorded for v.
func (t *tracker) lookup(v any) (any, bool) {
	id, ok := identityOf(v)
	if !ok || t.seen == nil {
		return nil, false
	}
	out, found := t.seen[id]
	return out, found
}

// record associates v with out. Values without identity are ignored.
func (t *tracker) record(v, out any) {
	id, ok := identityOf(v)
	if !ok || t.seen == nil {
		return
	}
	t.seen[id] = out
}

// visit marks v as visited and reports whether it already was.
func (t *tracker) visit(v any) bool {
	if _, seen := t.lookup(v); seen {
		return true
	}
	t.record(v, true)
	return false
}
