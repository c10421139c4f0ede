// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"math"
	"reflect"
)

// Equal reports whether a and b are structurally equal.
//
// Maps are equal when they hold equal values under the same keys, regardless of key
// order; lists when they hold equal items in the same order. [Map], [List], and native
// maps and slices compare with each other. Numbers compare by value, so int 1 equals
// float64 1. Pointers of the same type compare by what they point to. Other values
// compare with == when comparable and [reflect.DeepEqual] otherwise. Cyclic
// structures are handled.
func Equal(a, b any) bool {
	e := equality{seen: make(map[[2]identity]bool)}
	return e.equal(a, b)
}

type equality struct {
	seen map[[2]identity]bool
}

func (e *equality) equal(a, b any) bool {
	if na, ok := canonicalNumber(a); ok {
		nb, ok := canonicalNumber(b)
		return ok && na == nb
	}

	ma, aIsMap := asMap(a)
	mb, bIsMap := asMap(b)
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap {
			return false
		}
		if e.assume(a, b) {
			return true
		}
		if ma.Len() != mb.Len() {
			return false
		}
		for key, va := range ma.All() {
			vb, ok := mb.Get(key)
			if !ok || !e.equal(va, vb) {
				return false
			}
		}
		return true
	}

	la, aIsList := asList(a)
	lb, bIsList := asList(b)
	if aIsList || bIsList {
		if !aIsList || !bIsList {
			return false
		}
		if e.assume(a, b) {
			return true
		}
		if la.Len() != lb.Len() {
			return false
		}
		for i, va := range la.items {
			if !e.equal(va, lb.items[i]) {
				return false
			}
		}
		return true
	}

	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ra, rb := reflect.ValueOf(a), reflect.ValueOf(b); ra.Kind() == reflect.Pointer && ra.Type() == rb.Type() {
		if ra.IsNil() || rb.IsNil() || ra.Pointer() == rb.Pointer() {
			return ra.Pointer() == rb.Pointer()
		}
		if e.assume(a, b) {
			return true
		}
		return e.equal(ra.Elem().Interface(), rb.Elem().Interface())
	}
	if reflect.TypeOf(a) == reflect.TypeOf(b) && reflect.ValueOf(a).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// assume records that a and b are being compared and reports whether they already
// were. A pair reached again through a cycle is taken to be equal.
func (e *equality) assume(a, b any) bool {
	ia, okA := identityOf(a)
	ib, okB := identityOf(b)
	if !okA || !okB {
		return false
	}
	pair := [2]identity{ia, ib}
	if e.seen[pair] {
		return true
	}
	e.seen[pair] = true
	return false
}

// canonicalNumber maps every numeric kind onto a single representation:
// integral values become int64 or uint64, the rest float64.
func canonicalNumber(v any) (any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			return int64(u), true
		}
		return u, true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), true
		}
		return f, true
	default:
		return nil, false
	}
}

// hashKey returns a map key for v such that Equal values share a key.
// Only numbers, strings, and bools are hashed.
func hashKey(v any) (any, bool) {
	if n, ok := canonicalNumber(v); ok {
		return n, true
	}
	switch v := v.(type) {
	case string, bool:
		return v, true
	default:
		return nil, false
	}
}
