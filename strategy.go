// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// MergeFunc merges incoming into a copy of base and returns the copy.
// Strategies receive one to merge matching list items.
type MergeFunc func(base, incoming any) (any, error)

// Strategy combines two lists.
//
// MergeLists must not modify base or incoming; it returns a new slice that becomes the
// target list's contents. merge performs a non-mutating deep merge that joins the merge
// in progress, so cycles through list items stay safe.
type Strategy interface {
	MergeLists(base, incoming []any, merge MergeFunc) ([]any, error)
}

// StrategyFunc adapts a plain function to [Strategy]. Calling a nil StrategyFunc
// fails with [ErrInvalidStrategy].
type StrategyFunc func(base, incoming []any) ([]any, error)

// MergeLists calls f(base, incoming).
func (f StrategyFunc) MergeLists(base, incoming []any, _ MergeFunc) ([]any, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil StrategyFunc", ErrInvalidStrategy)
	}
	return f(base, incoming)
}

type replaceStrategy struct{}

func (replaceStrategy) MergeLists(_, incoming []any, _ MergeFunc) ([]any, error) {
	return append([]any(nil), incoming...), nil
}

func (replaceStrategy) String() string { return "replace" }

type concatStrategy struct{}

func (concatStrategy) MergeLists(base, incoming []any, _ MergeFunc) ([]any, error) {
	out := make([]any, 0, len(base)+len(incoming))
	out = append(out, base...)
	return append(out, incoming...), nil
}

func (concatStrategy) String() string { return "concat" }

type unionStrategy struct{}

// MergeLists keeps the first occurrence of every element of base followed by incoming.
func (unionStrategy) MergeLists(base, incoming []any, _ MergeFunc) ([]any, error) {
	out := make([]any, 0, len(base)+len(incoming))
	for _, items := range [][]any{base, incoming} {
		for _, item := range items {
			if !containsEqual(out, item) {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (unionStrategy) String() string { return "union" }

func containsEqual(items []any, v any) bool {
	for _, item := range items {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

var (
	// Replace discards the target list and uses the incoming one.
	Replace Strategy = replaceStrategy{}
	// Concat appends the incoming list to the target list, keeping duplicates.
	Concat Strategy = concatStrategy{}
	// Union appends incoming items not already present, as decided by [Equal].
	// Duplicates within the target list are dropped as well.
	Union Strategy = unionStrategy{}
)

// DetectKeys are the keys [KeyBased] tries, in order, when no key is configured.
var DetectKeys = []string{"id", "name", "key", "env", "host"}

// KeyBased merges lists of maps by matching items on the value of Key.
//
// Items of base and incoming whose Key values are [Equal] are deep-merged; the merged
// item takes the place of the base item. Incoming items without a match are appended.
// Only the first base item per key value can be matched; later base items with the same
// key value are left alone.
//
// If Key is empty it is detected from the first item of base, trying each of
// [DetectKeys]. If detection fails the lists are concatenated.
type KeyBased struct {
	Key string
}

// Preset key-based strategies.
var (
	KeyDetect = KeyBased{}
	KeyByID   = KeyBased{Key: "id"}
	KeyByName = KeyBased{Key: "name"}
	KeyByKey  = KeyBased{Key: "key"}
	KeyByHost = KeyBased{Key: "host"}
)

func (s KeyBased) String() string {
	if s.Key == "" {
		return "keyed"
	}
	return "keyed:" + s.Key
}

// MergeLists implements [Strategy]. A nil merge falls back to [DeepMerge].
func (s KeyBased) MergeLists(base, incoming []any, merge MergeFunc) ([]any, error) {
	key := s.Key
	if key == "" {
		key = detectKey(base)
		if key == "" {
			return Concat.MergeLists(base, incoming, merge)
		}
	}
	if merge == nil {
		merge = func(b, i any) (any, error) { return DeepMerge(b, i, nil) }
	}

	index := newKeyIndex(len(base))
	for i, item := range base {
		if kv, ok := keyValue(item, key); ok {
			index.add(kv, i)
		}
	}

	out := make([]any, len(base), len(base)+len(incoming))
	copy(out, base)
	for _, item := range incoming {
		kv, ok := keyValue(item, key)
		if !ok {
			out = append(out, item)
			continue
		}
		i, found := index.find(kv)
		if !found {
			out = append(out, item)
			continue
		}
		mg, mergeable := base[i].(Mergeable)
		if !mergeable || !mg.CanMerge(item) {
			if _, isMap := asMap(base[i]); !isMap {
				out = append(out, item)
				continue
			}
		}
		merged, err := merge(base[i], item)
		if err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}

// detectKey returns the first of DetectKeys present in the first item of base.
func detectKey(base []any) string {
	if len(base) == 0 {
		return ""
	}
	m, ok := asMap(base[0])
	if !ok {
		return ""
	}
	for _, key := range DetectKeys {
		if m.Has(key) {
			return key
		}
	}
	return ""
}

// keyValue returns the non-nil value of key in item, if item is a map.
func keyValue(item any, key string) (any, bool) {
	m, ok := asMap(item)
	if !ok {
		return nil, false
	}
	v, ok := m.Get(key)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// keyIndex maps key values to the position of the first base item holding them.
// Scalar values are hashed; anything else is compared with Equal.
type keyIndex struct {
	hashed map[any]int
	others []keyEntry
}

type keyEntry struct {
	value any
	index int
}

func newKeyIndex(size int) *keyIndex {
	return &keyIndex{hashed: make(map[any]int, size)}
}

func (x *keyIndex) add(v any, i int) {
	if h, ok := hashKey(v); ok {
		if _, exists := x.hashed[h]; !exists {
			x.hashed[h] = i
		}
		return
	}
	if _, exists := x.find(v); !exists {
		x.others = append(x.others, keyEntry{value: v, index: i})
	}
}

func (x *keyIndex) find(v any) (int, bool) {
	if h, ok := hashKey(v); ok {
		i, found := x.hashed[h]
		return i, found
	}
	for _, e := range x.others {
		if Equal(e.value, v) {
			return e.index, true
		}
	}
	return 0, false
}

// ParseStrategy returns the strategy named by s: "replace", "concat", "union",
// "keyed" (key detected), or "keyed:<key>". Names are case-insensitive.
func ParseStrategy(s string) (Strategy, error) {
	name, key, hasKey := strings.Cut(strings.TrimSpace(s), ":")
	switch strings.ToLower(name) {
	case "replace":
		if !hasKey {
			return Replace, nil
		}
	case "concat":
		if !hasKey {
			return Concat, nil
		}
	case "union":
		if !hasKey {
			return Union, nil
		}
	case "keyed", "key-based", "keybased":
		key = strings.TrimSpace(key)
		if hasKey && key == "" {
			return nil, fmt.Errorf("%w: empty key in %q", ErrInvalidStrategy, s)
		}
		return KeyBased{Key: key}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

type strategyBox struct {
	s Strategy
}

var defaultStrategy atomic.Pointer[strategyBox]

// DefaultStrategy returns the process-wide default strategy. It is [Concat] unless
// changed with [SetDefaultStrategy].
func DefaultStrategy() Strategy {
	if b := defaultStrategy.Load(); b != nil {
		return b.s
	}
	return Concat
}

// SetDefaultStrategy changes the process-wide default strategy, used by every
// [Merger] without its own. Passing nil restores [Concat].
func SetDefaultStrategy(s Strategy) {
	if s == nil {
		defaultStrategy.Store(nil)
		return
	}
	defaultStrategy.Store(&strategyBox{s: s})
}

// strategyName names s for log records.
func strategyName(s Strategy) string {
	if str, ok := s.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T", s)
}
