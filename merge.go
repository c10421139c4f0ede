// SPDX-License-Identifier: Apache-2.0

// Package deepmerge provides cycle-safe deep copy and deep merge over nested maps and lists.
//
// Maps ([Map]) are merged key by key, recursing into values that can themselves be merged.
// Lists ([List]) are combined by a pluggable [Strategy]: [Replace], [Concat], [Union], or
// [KeyBased], which matches list items on a key field and deep-merges the matches.
// Values of any other type replace each other wholesale.
//
// Cyclic and shared structures are handled by tracking object identity for the duration of
// one top-level call: a copy of a self-referencing map references itself, and a merge never
// revisits a container it has already merged into.
//
// Decoded documents (map[string]any, []any, yaml.MapSlice) are accepted wherever a map or
// list is expected; [FromNative] converts whole trees so they can be used as merge targets.
package deepmerge

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Sentinel errors for simple error checking with [errors.Is].
// For detailed error information, use [errors.As] with the typed errors below.
var (
	// ErrUnsupportedSource indicates an incoming value cannot be normalized to the target's kind.
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrUnsupportedTarget indicates a merge target that does not implement [Mergeable].
	ErrUnsupportedTarget = errors.New("unsupported target type")
	// ErrInvalidStrategy indicates a list strategy that is nil or cannot be parsed.
	ErrInvalidStrategy = errors.New("invalid strategy")
	// ErrMarshal indicates a marshaling or unmarshaling operation failed.
	ErrMarshal = errors.New("marshal error")
	// ErrInvalidOptions indicates invalid merge options were provided.
	ErrInvalidOptions = errors.New("invalid options")
)

// UnsupportedSourceError is returned when a map or list target is merged with a value
// that cannot be normalized to a map or list respectively.
type UnsupportedSourceError struct {
	// Want is the kind the target required: "map" or "list".
	Want string
	// Source is the offending incoming value.
	Source any
	// Path is where in the document the merge was attempted.
	Path []string
	// DocIndex tells which document the error occurred in.
	DocIndex int
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported type of source %T for %s merge at path %s in document %d",
		e.Source, e.Want, formatPath(e.Path), e.DocIndex)
}

func (e *UnsupportedSourceError) Is(target error) bool {
	return target == ErrUnsupportedSource
}

// UnsupportedTargetError is returned when the target of [DeepMergeInto] cannot be merged into.
type UnsupportedTargetError struct {
	// Target is the value that was passed as the merge target.
	Target any
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("no merge methods in target of type %T", e.Target)
}

func (e *UnsupportedTargetError) Is(target error) bool {
	return target == ErrUnsupportedTarget
}

// MarshalError is returned when unmarshaling or marshaling a document fails.
type MarshalError struct {
	// Err is the underlying error returned by a marshaling function.
	Err error
	// DocIndex tells which document the error occurred.
	DocIndex int
}

func (e *MarshalError) Error() string {
	return fmt.Sprintf("cannot marshal document at position %d: %v", e.DocIndex, e.Err)
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}

func (e *MarshalError) Is(target error) bool {
	return target == ErrMarshal
}

// Options configures merge behavior.
//
// The zero value is valid: lists are combined with the process-wide default strategy
// (see [SetDefaultStrategy]), no field-specific rules apply, and nothing is logged.
type Options struct {
	// Strategy overrides the process-wide default strategy for every merge performed
	// by the [Merger]. It is shadowed by field rules and by per-call overrides.
	Strategy Strategy

	// FieldStrategies assigns strategies to lists by the dotted path of map keys that
	// leads to them. List items are transparent: "services.ports" names the ports list
	// inside every item of the services list.
	//
	// Example: {"users": KeyByName, "users.roles": Union}
	FieldStrategies map[string]Strategy

	// Logger receives debug records about strategy selection and cycle detection.
	// If nil, nothing is logged.
	Logger *slog.Logger
}

// Merger performs deep copies and deep merges with the configured options.
// It tracks the current document path for detailed error reporting and the
// containers visited by the merge in progress.
//
// A Merger can be safely reused for multiple merge operations. Each top-level call
// starts with a clean visited table; calls made while a merge is in progress (from a
// [Mergeable] or [Strategy] implementation) join the merge in progress.
//
// A Merger is not safe to use concurrently.
type Merger struct {
	opts     Options
	log      *slog.Logger
	strategy Strategy       // override of the process default, nil when unset
	override Strategy       // per-call override of the merge in progress
	meta     *fieldMetadata // field rules, nil when there are none
	visited  tracker

	path  []string         // current path in document tree for error reporting
	metas []*fieldMetadata // field rules parallel to path
	index int              // current document index being processed
}

// NewMerger creates a new [Merger] with the given options.
// Returns an error if the options are invalid.
func NewMerger(opts Options) (*Merger, error) {
	meta, err := buildPathMetadata(nil, opts.FieldStrategies)
	if err != nil {
		return nil, err
	}
	return newMerger(opts, meta), nil
}

func newMerger(opts Options, meta *fieldMetadata) *Merger {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Merger{
		opts:     opts,
		log:      log,
		strategy: opts.Strategy,
		meta:     meta,
	}
}

// Options returns the merge options configured for this [Merger].
func (m *Merger) Options() Options {
	return m.opts
}

// Strategy returns the strategy lists are combined with when neither a per-call
// override nor a field rule applies: the Merger's own override if set, else the
// process-wide default.
func (m *Merger) Strategy() Strategy {
	if m.strategy != nil {
		return m.strategy
	}
	return DefaultStrategy()
}

// SetStrategy overrides the process-wide default for this Merger only.
// Passing nil removes the override.
func (m *Merger) SetStrategy(s Strategy) {
	m.strategy = s
}

// SetDefaultStrategy updates the process-wide default and also makes s this
// Merger's override, so it takes effect here even if other code changes the
// process default afterwards.
func (m *Merger) SetDefaultStrategy(s Strategy) {
	SetDefaultStrategy(s)
	m.strategy = s
}

// DeepCopy returns an independent copy of v. Maps and lists are copied recursively,
// preserving cycles and shared references; other values are copied by assignment
// unless they implement [DeepCopier].
func DeepCopy(v any) any {
	var c Copier
	return c.Copy(v)
}

// DeepMerge merges incoming into a deep copy of target and returns the copy.
// See [Merger.DeepMerge] for details.
func DeepMerge(target, incoming any, override Strategy) (any, error) {
	return newMerger(Options{}, nil).DeepMerge(target, incoming, override)
}

// DeepMergeInto merges incoming into target in place and returns target.
// See [Merger.DeepMergeInto] for details.
func DeepMergeInto(target, incoming any, override Strategy) (any, error) {
	return newMerger(Options{}, nil).DeepMergeInto(target, incoming, override)
}

// Merge merges multiple documents. See [Merger.Merge] for details.
func Merge(opts Options, docs ...any) (any, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	return m.Merge(docs...)
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
// See [Merger.MergeMarshal] for details.
func MergeMarshal(
	opts Options,
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	docs ...[]byte,
) ([]byte, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	return m.MergeMarshal(unmarshal, marshal, docs...)
}

// DeepCopy returns an independent copy of v. See [DeepCopy].
func (m *Merger) DeepCopy(v any) any {
	return DeepCopy(v)
}

// DeepMerge is the non-mutating form of [Merger.DeepMergeInto]: it merges incoming
// into a deep copy of target. Neither target nor incoming is modified, although the
// result may share values that were taken from incoming.
//
// Native maps and slices (such as map[string]any) are accepted as target; the copy
// is a [Map] or [List].
func (m *Merger) DeepMerge(target, incoming any, override Strategy) (any, error) {
	return m.DeepMergeInto(mergeTarget(m.DeepCopy(target)), incoming, override)
}

// DeepMergeInto merges incoming into target in place and returns target.
//
// Maps are merged key by key in incoming's order. Keys missing from target are
// inserted with incoming's value as-is, without copying; callers that need the
// result to be independent of incoming should pass a copy. Keys present in both are
// merged recursively when the existing value is [Mergeable] with the incoming one,
// and replaced otherwise. An existing native map or slice is merged as a converted
// [Map] or [List] that takes its place.
//
// Lists are combined by the first strategy found among: override, a field rule from
// [Options.FieldStrategies] or struct tags, the Merger's own strategy, and the
// process-wide default. The target list keeps its identity; only its contents change.
//
// Target must implement [Mergeable]; otherwise an [UnsupportedTargetError] is returned.
// A map or list target that cannot normalize incoming fails with an
// [UnsupportedSourceError]. Mutation is incremental: on error, keys merged before the
// failure stay merged.
func (m *Merger) DeepMergeInto(target, incoming any, override Strategy) (any, error) {
	return scoped(&m.visited, func() (any, error) {
		if m.visited.depth == 1 {
			m.reset(0)
		}
		defer m.pushOverride(override)()
		mg, ok := target.(Mergeable)
		if !ok || isNil(target) {
			return nil, &UnsupportedTargetError{Target: target}
		}
		if err := mg.MergeFrom(m, incoming); err != nil {
			return nil, err
		}
		return target, nil
	})
}

// Combine merges incoming into existing when existing is [Mergeable] with it and
// returns the merged value; otherwise it returns incoming, which should replace
// existing. Native maps and slices in existing are converted with [FromNative] and
// the converted container is returned. [Mergeable] implementations use it for their
// children and must store the result.
func (m *Merger) Combine(existing, incoming any) (any, error) {
	return scoped(&m.visited, func() (any, error) {
		if isNil(existing) {
			return incoming, nil
		}
		mg, ok := mergeTarget(existing).(Mergeable)
		if !ok || !mg.CanMerge(incoming) {
			return incoming, nil
		}
		if err := mg.MergeFrom(m, incoming); err != nil {
			return nil, err
		}
		return mg, nil
	})
}

// Merge merges multiple documents left-to-right, with later documents taking precedence.
//
// Each document is converted with [FromNative] first, so decoded map[string]any and
// []any trees are accepted and the result never shares containers with the inputs.
// Nil documents (such as empty YAML files) are skipped. A document that cannot be
// merged into the result so far replaces it.
//
// Example:
//
//	opts := Options{FieldStrategies: map[string]Strategy{"users": KeyByName}}
//	base := map[string]any{"users": []any{
//		map[string]any{"name": "alice", "role": "user"},
//	}}
//	overlay := map[string]any{"users": []any{
//		map[string]any{"name": "alice", "role": "admin"},
//	}}
//	result, _ := Merge(opts, base, overlay)
//	// Result: alice's role updated to "admin"
func (m *Merger) Merge(docs ...any) (any, error) {
	var result any
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		doc = FromNative(doc)
		if result == nil {
			result = doc
			continue
		}
		m.reset(i)
		merged, err := m.Combine(result, doc)
		if err != nil {
			return nil, err
		}
		result = merged
	}
	return result, nil
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
//
// Documents are unmarshaled, merged left-to-right with [Merger.Merge], then marshaled back to bytes.
// Works with any serialization format (YAML, JSON, TOML, etc.) via custom marshal functions.
// [UnmarshalYAML] and [UnmarshalJSON] keep the documents' key order.
//
// Returns an empty byte slice if docs is empty. Returns an error if unmarshaling,
// merging, or marshaling fails.
//
// Example:
//
//	import "github.com/goccy/go-yaml"
//
//	opts := Options{Strategy: KeyByName}
//	base := []byte("users:\n  - name: alice\n    role: user")
//	overlay := []byte("users:\n  - name: alice\n    role: admin")
//	result, _ := MergeMarshal(opts, UnmarshalYAML, yaml.Marshal, base, overlay)
func (m *Merger) MergeMarshal(
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	docs ...[]byte,
) ([]byte, error) {
	if len(docs) == 0 {
		return []byte{}, nil
	}

	parsedDocs := make([]any, len(docs))
	for i, doc := range docs {
		var current any
		if err := unmarshal(doc, &current); err != nil {
			return nil, &MarshalError{
				Err:      err,
				DocIndex: i,
			}
		}
		parsedDocs[i] = current
	}

	result, err := m.Merge(parsedDocs...)
	if err != nil {
		return nil, err
	}

	return marshal(result)
}

func (m *Merger) pushOverride(s Strategy) func() {
	prev := m.override
	if s != nil {
		m.override = s
	}
	return func() { m.override = prev }
}

func (m *Merger) reset(i int) {
	m.path = nil
	m.metas = nil
	m.index = i
}

func (m *Merger) push(key string) {
	m.path = append(m.path, key)
	m.metas = append(m.metas, m.currentMeta().child(key))
}

func (m *Merger) pop() {
	if len(m.path) == 0 {
		panic("unbalanced deepmerge.Merger pop")
	}
	m.path = m.path[:len(m.path)-1]
	m.metas = m.metas[:len(m.metas)-1]
}

func (m *Merger) currentMeta() *fieldMetadata {
	if len(m.metas) == 0 {
		return m.meta
	}
	return m.metas[len(m.metas)-1]
}

// mergeMap merges incoming into target key by key.
func (m *Merger) mergeMap(target *Map, incoming any) error {
	if m.visited.visit(target) {
		m.log.Debug("deepmerge: map already visited, skipping", "path", formatPath(m.path))
		return nil
	}

	source, ok := asMap(incoming)
	if !ok {
		return &UnsupportedSourceError{
			Want:     "map",
			Source:   incoming,
			Path:     slices.Clone(m.path),
			DocIndex: m.index,
		}
	}

	for key, value := range source.All() {
		existing, exists := target.Get(key)
		if !exists {
			target.Set(key, value)
			continue
		}

		m.push(key)
		merged, err := m.Combine(existing, value)
		m.pop()
		if err != nil {
			return err
		}
		target.Set(key, merged)
	}
	return nil
}

// mergeList replaces the contents of target with the effective strategy's combination
// of target and incoming.
func (m *Merger) mergeList(target *List, incoming any) error {
	if m.visited.visit(target) {
		m.log.Debug("deepmerge: list already visited, skipping", "path", formatPath(m.path))
		return nil
	}

	source, ok := asList(incoming)
	if !ok {
		return &UnsupportedSourceError{
			Want:     "list",
			Source:   incoming,
			Path:     slices.Clone(m.path),
			DocIndex: m.index,
		}
	}

	strategy, err := m.effectiveStrategy()
	if err != nil {
		return err
	}
	m.log.Debug("deepmerge: merging lists",
		"path", formatPath(m.path),
		"strategy", strategyName(strategy),
		"base", target.Len(),
		"incoming", source.Len())

	merged, err := strategy.MergeLists(slices.Clone(target.items), source.items, m.mergeCopy)
	if err != nil {
		return err
	}

	target.items = append(make([]any, 0, len(merged)), merged...)
	return nil
}

// effectiveStrategy resolves the strategy for the list at the current path.
func (m *Merger) effectiveStrategy() (Strategy, error) {
	s := m.override
	if s == nil {
		if meta := m.currentMeta(); meta != nil && meta.strategy != nil {
			s = meta.strategy
		}
	}
	if s == nil {
		s = m.Strategy()
	}
	if isNil(s) {
		return nil, fmt.Errorf("%w: %T at path %s is nil", ErrInvalidStrategy, s, formatPath(m.path))
	}
	return s, nil
}

// mergeCopy is the [MergeFunc] handed to strategies: a non-mutating merge that joins
// the merge in progress.
func (m *Merger) mergeCopy(base, incoming any) (any, error) {
	return m.DeepMerge(base, incoming, nil)
}

// mergeTarget converts native maps and slices so they can be merged into.
func mergeTarget(v any) any {
	if _, ok := v.(Mergeable); ok {
		return v
	}
	if _, ok := asMap(v); ok {
		return FromNative(v)
	}
	if _, ok := asList(v); ok {
		return FromNative(v)
	}
	return v
}

func formatPath(path []string) string {
	p := strings.Join(path, ".")
	if p == "" {
		return "(root)"
	}
	return p
}
