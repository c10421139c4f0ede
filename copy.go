// SPDX-License-Identifier: Apache-2.0

package deepmerge

import "reflect"

// DeepCopier is implemented by values that copy themselves.
//
// Implementations that contain other values should allocate their copy, pass it to
// [Copier.Register], and then copy each child with [Copier.Copy]. Doing so keeps
// cycles through the value intact and shares copies of shared children.
type DeepCopier interface {
	DeepCopy(c *Copier) any
}

// Copier holds the state of one deep copy: the copies made so far, keyed by the
// identity of their source. The zero value is ready to use.
//
// Values that are neither [DeepCopier] nor map[string]any or []any are copied by
// reflection: maps, slices, arrays and pointers are cloned, and everything they hold
// is copied in turn. Struct values are copied field by field as Go assigns them, so
// references inside a struct stay shared unless the struct is a [DeepCopier].
type Copier struct {
	copies tracker
}

// Copy returns a deep copy of v.
//
// A source reached more than once during one copy, whether through a cycle or
// through shared references, yields the same copy each time.
func (c *Copier) Copy(v any) any {
	out, _ := scoped(&c.copies, func() (any, error) {
		return c.copy(v), nil
	})
	return out
}

// Register records dst as the copy of src for the copy in progress.
// It has no effect outside of [Copier.Copy].
func (c *Copier) Register(src, dst any) {
	c.copies.record(src, dst)
}

func (c *Copier) copy(v any) any {
	if prev, ok := c.copies.lookup(v); ok {
		return prev
	}

	var out any
	switch v := v.(type) {
	case DeepCopier:
		if isNil(v) {
			return v
		}
		out = v.DeepCopy(c)
	case map[string]any:
		if v == nil {
			return v
		}
		m := make(map[string]any, len(v))
		c.Register(v, m)
		for key, value := range v {
			m[key] = c.Copy(value)
		}
		return m
	case []any:
		if v == nil {
			return v
		}
		s := make([]any, len(v))
		c.Register(v, s)
		for i, item := range v {
			s[i] = c.Copy(item)
		}
		return s
	default:
		if v == nil {
			return nil
		}
		return c.copyValue(reflect.ValueOf(v)).Interface()
	}

	if _, ok := c.copies.lookup(v); !ok {
		c.Register(v, out)
	}
	return out
}

var deepCopierType = reflect.TypeFor[DeepCopier]()

// copyValue copies rv for the reflection fallback of copy. Values that copy knows
// how to handle directly are handed back to it.
func (c *Copier) copyValue(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Invalid:
		return rv
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		return c.assign(rv, c.copy(rv.Elem().Interface()))
	}
	if t := rv.Type(); t.Implements(deepCopierType) || t == mapType || t == sliceType {
		return c.assign(rv, c.copy(rv.Interface()))
	}

	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if rv.IsNil() {
			return rv
		}
		if prev, ok := c.copies.lookup(rv.Interface()); ok {
			return reflect.ValueOf(prev)
		}
	case reflect.Array:
	default:
		return rv
	}

	var out reflect.Value
	switch rv.Kind() {
	case reflect.Map:
		out = reflect.MakeMapWithSize(rv.Type(), rv.Len())
		c.Register(rv.Interface(), out.Interface())
		for it := rv.MapRange(); it.Next(); {
			out.SetMapIndex(it.Key(), c.copyValue(it.Value()))
		}
	case reflect.Slice:
		out = reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		c.Register(rv.Interface(), out.Interface())
		for i := range rv.Len() {
			out.Index(i).Set(c.copyValue(rv.Index(i)))
		}
	case reflect.Array:
		out = reflect.New(rv.Type()).Elem()
		for i := range rv.Len() {
			out.Index(i).Set(c.copyValue(rv.Index(i)))
		}
	case reflect.Pointer:
		out = reflect.New(rv.Type().Elem())
		c.Register(rv.Interface(), out.Interface())
		out.Elem().Set(c.copyValue(rv.Elem()))
	}
	return out
}

// assign returns copied as a value of rv's type, or rv itself when the copy does not
// fit there.
func (c *Copier) assign(rv reflect.Value, copied any) reflect.Value {
	if copied == nil {
		return reflect.Zero(rv.Type())
	}
	cv := reflect.ValueOf(copied)
	if !cv.Type().AssignableTo(rv.Type()) {
		return rv
	}
	return cv
}

var (
	mapType   = reflect.TypeFor[map[string]any]()
	sliceType = reflect.TypeFor[[]any]()
)
