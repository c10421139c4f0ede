// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"iter"
	"slices"
)

// List is an ordered sequence of values.
//
// Merging into a List changes its contents but not its identity, so other
// references to the same List observe the merge.
//
// The zero value is an empty list ready to use.
type List struct {
	items []any
}

// NewList returns a list holding a copy of items.
func NewList(items ...any) *List {
	return &List{items: slices.Clone(items)}
}

// Len returns the number of items.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// At returns the item at index i. It panics if i is out of range.
func (l *List) At(i int) any {
	return l.items[i]
}

// Set replaces the item at index i. It panics if i is out of range.
func (l *List) Set(i int, v any) {
	l.items[i] = v
}

// Append adds items to the end of the list.
func (l *List) Append(items ...any) {
	l.items = append(l.items, items...)
}

// Clear removes all items.
func (l *List) Clear() {
	clear(l.items)
	l.items = l.items[:0]
}

// Items returns a copy of the items.
func (l *List) Items() []any {
	if l == nil {
		return nil
	}
	return slices.Clone(l.items)
}

// Index returns the position of the first item [Equal] to v, or -1.
func (l *List) Index(v any) int {
	if l == nil {
		return -1
	}
	return slices.IndexFunc(l.items, func(item any) bool { return Equal(item, v) })
}

// All iterates over the items in order.
func (l *List) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		if l == nil {
			return
		}
		for i, item := range slices.Clone(l.items) {
			if !yield(i, item) {
				return
			}
		}
	}
}

// String formats the list like a Go slice.
func (l *List) String() string {
	return string(appendValue(nil, l, nil))
}

// DeepCopy implements [DeepCopier].
func (l *List) DeepCopy(c *Copier) any {
	if l == nil {
		return l
	}
	out := &List{items: make([]any, len(l.items))}
	c.Register(l, out)
	for i, item := range l.items {
		out.items[i] = c.Copy(item)
	}
	return out
}

// CanMerge implements [Mergeable]: other must be convertible to a list.
func (l *List) CanMerge(other any) bool {
	if l == nil {
		return false
	}
	_, ok := asList(other)
	return ok
}

// MergeFrom implements [Mergeable].
func (l *List) MergeFrom(mg *Merger, other any) error {
	return mg.mergeList(l, other)
}
