// SPDX-License-Identifier: Apache-2.0

package deepmerge_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam-fredrickson/deepmerge"
)

// Test helpers for YAML-specific merging.
func mergeYAML(docs ...[]byte) ([]byte, error) {
	return mergeYAMLWith(deepmerge.Options{}, docs...)
}

func mergeYAMLWith(opts deepmerge.Options, docs ...[]byte) ([]byte, error) {
	return deepmerge.MergeMarshal(opts, deepmerge.UnmarshalYAML, yaml.Marshal, docs...)
}

// withDefaultStrategy sets the process-wide default for the duration of the test.
func withDefaultStrategy(t *testing.T, s deepmerge.Strategy) {
	t.Helper()
	prev := deepmerge.DefaultStrategy()
	deepmerge.SetDefaultStrategy(s)
	t.Cleanup(func() { deepmerge.SetDefaultStrategy(prev) })
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name     string
		target   any
		incoming any
		want     any
	}{
		{
			name:     "flat",
			target:   deepmerge.MapOf("a", 1, "b", 2),
			incoming: deepmerge.MapOf("b", 3, "c", 4),
			want:     deepmerge.MapOf("a", 1, "b", 3, "c", 4),
		},
		{
			name:     "nested",
			target:   deepmerge.MapOf("x", deepmerge.MapOf("a", 1, "b", 2)),
			incoming: deepmerge.MapOf("x", deepmerge.MapOf("b", 3, "c", 4)),
			want:     deepmerge.MapOf("x", deepmerge.MapOf("a", 1, "b", 3, "c", 4)),
		},
		{
			name:     "default concat keeps duplicates",
			target:   deepmerge.MapOf("x", deepmerge.NewList(1, 2)),
			incoming: deepmerge.MapOf("x", deepmerge.NewList(2, 3)),
			want:     deepmerge.MapOf("x", deepmerge.NewList(1, 2, 2, 3)),
		},
		{
			name:     "native target and incoming",
			target:   map[string]any{"x": []any{1}, "y": map[string]any{"a": 1}},
			incoming: map[string]any{"x": []any{2}, "y": map[string]any{"b": 2}},
			want:     deepmerge.MapOf("x", deepmerge.NewList(1, 2), "y", deepmerge.MapOf("a", 1, "b", 2)),
		},
		{
			name:     "empty collections",
			target:   deepmerge.NewMap(0),
			incoming: map[string]any{},
			want:     deepmerge.NewMap(0),
		},
		{
			name:     "nil value is replaced by map",
			target:   deepmerge.MapOf("a", nil),
			incoming: deepmerge.MapOf("a", deepmerge.MapOf("b", 1)),
			want:     deepmerge.MapOf("a", deepmerge.MapOf("b", 1)),
		},
		{
			name:     "map is replaced by nil",
			target:   deepmerge.MapOf("a", deepmerge.MapOf("b", 1)),
			incoming: deepmerge.MapOf("a", nil),
			want:     deepmerge.MapOf("a", nil),
		},
		{
			name:     "kind mismatch replaces",
			target:   deepmerge.MapOf("a", deepmerge.NewList(1), "b", "s"),
			incoming: deepmerge.MapOf("a", deepmerge.MapOf("k", 1), "b", deepmerge.NewList(2)),
			want:     deepmerge.MapOf("a", deepmerge.MapOf("k", 1), "b", deepmerge.NewList(2)),
		},
	}

	withDefaultStrategy(t, deepmerge.Concat)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deepmerge.DeepMerge(tt.target, tt.incoming, nil)
			require.NoError(t, err)
			assert.True(t, deepmerge.Equal(tt.want, got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestUnionScenarioThroughMerge(t *testing.T) {
	got, err := deepmerge.DeepMerge(
		deepmerge.MapOf("x", deepmerge.NewList(1, 2, 3)),
		deepmerge.MapOf("x", []any{2, 3, 4}),
		deepmerge.Union,
	)
	require.NoError(t, err)
	assert.Equal(t, "map[x:[1 2 3 4]]", got.(*deepmerge.Map).String())
}

func TestUnsupportedSource(t *testing.T) {
	_, err := deepmerge.DeepMerge(deepmerge.NewMap(0), "a string", nil)
	require.ErrorIs(t, err, deepmerge.ErrUnsupportedSource)

	var srcErr *deepmerge.UnsupportedSourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "map", srcErr.Want)
	assert.Equal(t, "a string", srcErr.Source)
	assert.Empty(t, srcErr.Path)
	assert.Contains(t, err.Error(), "(root)")

	_, err = deepmerge.DeepMergeInto(deepmerge.NewList(), deepmerge.MapOf("a", 1), nil)
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "list", srcErr.Want)
}

// forward merges whatever it receives into a fresh map, from wherever it sits.
type forward struct{}

func (forward) CanMerge(any) bool { return true }

func (forward) MergeFrom(m *deepmerge.Merger, other any) error {
	_, err := m.DeepMergeInto(deepmerge.NewMap(0), other, nil)
	return err
}

func TestUnsupportedSourcePath(t *testing.T) {
	m, err := deepmerge.NewMerger(deepmerge.Options{})
	require.NoError(t, err)

	_, err = m.Merge(
		deepmerge.MapOf("outer", deepmerge.MapOf("inner", forward{})),
		map[string]any{"unrelated": true},
		map[string]any{"outer": map[string]any{"inner": 42}},
	)
	var srcErr *deepmerge.UnsupportedSourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, []string{"outer", "inner"}, srcErr.Path)
	assert.Equal(t, 2, srcErr.DocIndex)
	assert.Equal(t, 42, srcErr.Source)
	assert.Contains(t, err.Error(), "outer.inner")
	assert.Contains(t, err.Error(), "document 2")

	// a later top-level call does not report the stale position
	_, err = m.DeepMergeInto(deepmerge.MapOf("a", 1), 5, nil)
	require.ErrorAs(t, err, &srcErr)
	assert.Zero(t, srcErr.DocIndex)
	assert.Empty(t, srcErr.Path)
}

func TestUnsupportedTarget(t *testing.T) {
	for _, target := range []any{nil, "string", 1, map[string]any{}, (*deepmerge.Map)(nil)} {
		_, err := deepmerge.DeepMergeInto(target, deepmerge.NewMap(0), nil)
		assert.ErrorIs(t, err, deepmerge.ErrUnsupportedTarget, "%T", target)
	}
}

func TestDeepMergeDoesNotMutate(t *testing.T) {
	target := deepmerge.MapOf(
		"a", 1,
		"nested", deepmerge.MapOf("x", deepmerge.NewList(1, 2)),
		"users", deepmerge.NewList(deepmerge.MapOf("id", 1, "role", "user")),
	)
	incoming := deepmerge.MapOf(
		"a", 2,
		"nested", deepmerge.MapOf("x", deepmerge.NewList(3), "y", true),
		"users", deepmerge.NewList(deepmerge.MapOf("id", 1, "role", "admin")),
	)
	targetBefore := deepmerge.DeepCopy(target)
	incomingBefore := deepmerge.DeepCopy(incoming)

	for _, s := range []deepmerge.Strategy{nil, deepmerge.Replace, deepmerge.Concat, deepmerge.Union, deepmerge.KeyDetect} {
		got, err := deepmerge.DeepMerge(target, incoming, s)
		require.NoError(t, err)
		assert.NotSame(t, target, got)
		assert.True(t, deepmerge.Equal(targetBefore, target), "target changed with %v", s)
		assert.True(t, deepmerge.Equal(incomingBefore, incoming), "incoming changed with %v", s)
	}
}

func TestDeepMergeIntoMutatesInPlace(t *testing.T) {
	list := deepmerge.NewList(1)
	target := deepmerge.MapOf("list", list, "keep", "me")
	alias := target

	got, err := deepmerge.DeepMergeInto(target, deepmerge.MapOf("list", deepmerge.NewList(2), "new", 3), nil)
	require.NoError(t, err)
	assert.Same(t, target, got)
	assert.Same(t, list, target.Fetch("list"), "lists keep their identity")
	assert.Equal(t, []any{1, 2}, list.Items())
	assert.Equal(t, 3, alias.Fetch("new"))
	assert.Equal(t, []string{"list", "keep", "new"}, target.Keys())
}

func TestDeepMergeIntoAliasesIncoming(t *testing.T) {
	child := deepmerge.MapOf("v", 1)
	target := deepmerge.NewMap(0)
	_, err := deepmerge.DeepMergeInto(target, deepmerge.MapOf("child", child), nil)
	require.NoError(t, err)
	assert.Same(t, child, target.Fetch("child"), "new keys take incoming values as-is")
}

func TestDeepMergeIntoPartialOnError(t *testing.T) {
	boom := errors.New("boom")
	target := deepmerge.MapOf("a", 1, "b", custom{kind: "fail", err: boom}, "c", 3)
	incoming := deepmerge.MapOf("a", 10, "b", 20, "c", 30)

	_, err := deepmerge.DeepMergeInto(target, incoming, nil)
	assert.Same(t, boom, err, "errors from Mergeable implementations are not wrapped")
	assert.Equal(t, 10, target.Fetch("a"), "keys merged before the failure stay merged")
	assert.Equal(t, 3, target.Fetch("c"))
}

func TestMergeSelfReferencingMap(t *testing.T) {
	m := deepmerge.MapOf("v", 1)
	m.Set("self", m)

	got, err := deepmerge.DeepMergeInto(m, m, nil)
	require.NoError(t, err)
	assert.Same(t, m, got)
	assert.Same(t, m, m.Fetch("self"))

	incoming := deepmerge.MapOf("v", 2)
	incoming.Set("self", incoming)
	_, err = deepmerge.DeepMergeInto(m, incoming, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Fetch("v"))
	assert.Same(t, m, m.Fetch("self"), "self reference intact")
}

func TestMergeSelfReferencingList(t *testing.T) {
	l := deepmerge.NewList(1)
	l.Append(l)
	target := deepmerge.MapOf("l", l)

	got, err := deepmerge.DeepMerge(target, deepmerge.MapOf("l", deepmerge.NewList(2)), nil)
	require.NoError(t, err)
	gotList := got.(*deepmerge.Map).Fetch("l").(*deepmerge.List)
	require.Equal(t, 3, gotList.Len())
	assert.Same(t, gotList, gotList.At(1))
	assert.Equal(t, 2, gotList.At(2))
}

func TestMergeMixedCycle(t *testing.T) {
	m := deepmerge.MapOf("name", "a")
	m.Set("children", deepmerge.NewList(m))

	got, err := deepmerge.DeepMerge(m, deepmerge.MapOf("name", "b"), deepmerge.KeyByName)
	require.NoError(t, err)
	gm := got.(*deepmerge.Map)
	assert.Equal(t, "b", gm.Fetch("name"))
	assert.Same(t, gm, gm.Fetch("children").(*deepmerge.List).At(0))
}

func TestMergeSharedChildMergedOnce(t *testing.T) {
	shared := deepmerge.MapOf("list", deepmerge.NewList(1))
	target := deepmerge.MapOf("a", shared, "b", shared)

	_, err := deepmerge.DeepMergeInto(target,
		deepmerge.MapOf(
			"a", deepmerge.MapOf("list", deepmerge.NewList(2)),
			"b", deepmerge.MapOf("list", deepmerge.NewList(3)),
		), nil)
	require.NoError(t, err)
	assert.Same(t, target.Fetch("a"), target.Fetch("b"))
	assert.Equal(t, []any{1, 2}, shared.Fetch("list").(*deepmerge.List).Items())
}

func TestVisitedTableResetsBetweenCalls(t *testing.T) {
	m, err := deepmerge.NewMerger(deepmerge.Options{})
	require.NoError(t, err)

	target := deepmerge.MapOf("n", deepmerge.NewList(1))
	for i := 2; i <= 3; i++ {
		_, err := m.DeepMergeInto(target, deepmerge.MapOf("n", deepmerge.NewList(i)), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []any{1, 2, 3}, target.Fetch("n").(*deepmerge.List).Items())
}

func TestStrategyPrecedence(t *testing.T) {
	withDefaultStrategy(t, deepmerge.Union)

	target := deepmerge.MapOf("x", deepmerge.NewList(1, 2))
	incoming := deepmerge.MapOf("x", deepmerge.NewList(2, 3))
	items := func(v any) []any {
		return v.(*deepmerge.Map).Fetch("x").(*deepmerge.List).Items()
	}

	got, err := deepmerge.DeepMerge(target, incoming, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, items(got), "process default")

	m, err := deepmerge.NewMerger(deepmerge.Options{Strategy: deepmerge.Concat})
	require.NoError(t, err)
	assert.Equal(t, deepmerge.Concat, m.Strategy())
	got, err = m.DeepMerge(target, incoming, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 2, 3}, items(got), "merger override beats process default")

	got, err = m.DeepMerge(target, incoming, deepmerge.Replace)
	require.NoError(t, err)
	assert.Equal(t, []any{2, 3}, items(got), "per-call override beats everything")

	fieldMerger, err := deepmerge.NewMerger(deepmerge.Options{
		Strategy:        deepmerge.Concat,
		FieldStrategies: map[string]deepmerge.Strategy{"x": deepmerge.Replace},
	})
	require.NoError(t, err)
	got, err = fieldMerger.DeepMerge(target, incoming, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{2, 3}, items(got), "field rule beats merger override")
	got, err = fieldMerger.DeepMerge(target, incoming, deepmerge.Union)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, items(got), "per-call override beats field rule")

	m.SetStrategy(nil)
	assert.Equal(t, deepmerge.Union, m.Strategy(), "clearing the override exposes the default")
}

func TestSetDefaultStrategy(t *testing.T) {
	withDefaultStrategy(t, nil)
	assert.Equal(t, deepmerge.Concat, deepmerge.DefaultStrategy(), "nil restores concat")

	m, err := deepmerge.NewMerger(deepmerge.Options{})
	require.NoError(t, err)
	m.SetDefaultStrategy(deepmerge.Replace)
	assert.Equal(t, deepmerge.Replace, deepmerge.DefaultStrategy())
	assert.Equal(t, deepmerge.Replace, m.Strategy())

	deepmerge.SetDefaultStrategy(deepmerge.Union)
	assert.Equal(t, deepmerge.Replace, m.Strategy(), "merger keeps its own override")

	other, err := deepmerge.NewMerger(deepmerge.Options{})
	require.NoError(t, err)
	assert.Equal(t, deepmerge.Union, other.Strategy())
}

func TestNilStrategy(t *testing.T) {
	var nilFunc deepmerge.StrategyFunc
	m, err := deepmerge.NewMerger(deepmerge.Options{Strategy: nilFunc})
	require.NoError(t, err)

	_, err = m.DeepMerge(deepmerge.MapOf("x", deepmerge.NewList(1)), deepmerge.MapOf("x", deepmerge.NewList(2)), nil)
	assert.ErrorIs(t, err, deepmerge.ErrInvalidStrategy)

	_, err = m.DeepMerge(deepmerge.MapOf("a", 1), deepmerge.MapOf("b", 2), nil)
	assert.NoError(t, err, "a nil strategy fails only when a list is merged")
}

func TestInvalidOptions(t *testing.T) {
	for name, fs := range map[string]map[string]deepmerge.Strategy{
		"nil strategy": {"users": nil},
		"empty path":   {"": deepmerge.Union},
		"empty key":    {"users..roles": deepmerge.Union},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := deepmerge.NewMerger(deepmerge.Options{FieldStrategies: fs})
			assert.ErrorIs(t, err, deepmerge.ErrInvalidOptions)
		})
	}
}

func TestFieldStrategiesThroughListItems(t *testing.T) {
	opts := deepmerge.Options{FieldStrategies: map[string]deepmerge.Strategy{
		"services":       deepmerge.KeyByName,
		"services.ports": deepmerge.Union,
	}}
	base := []byte(`
services:
  - name: web
    ports: [80, 443]
  - name: db
    ports: [5432]
`)
	overlay := []byte(`
services:
  - name: web
    ports: [443, 8080]
  - name: cache
    ports: [6379]
`)
	got, err := mergeYAMLWith(opts, base, overlay)
	require.NoError(t, err)

	var cfg struct {
		Services []struct {
			Name  string `yaml:"name"`
			Ports []int  `yaml:"ports"`
		} `yaml:"services"`
	}
	require.NoError(t, yaml.Unmarshal(got, &cfg))
	require.Len(t, cfg.Services, 3)
	assert.Equal(t, "web", cfg.Services[0].Name)
	assert.Equal(t, []int{80, 443, 8080}, cfg.Services[0].Ports)
	assert.Equal(t, "db", cfg.Services[1].Name)
	assert.Equal(t, "cache", cfg.Services[2].Name)
}

func TestMergeDocuments(t *testing.T) {
	a := map[string]any{"list": []any{1}, "k": "a"}
	got, err := deepmerge.Merge(deepmerge.Options{},
		nil,
		a,
		nil,
		map[string]any{"list": []any{2}},
		map[string]any{"k": "c"},
	)
	require.NoError(t, err)

	gm := got.(*deepmerge.Map)
	assert.Equal(t, []any{1, 2}, gm.Fetch("list").(*deepmerge.List).Items())
	assert.Equal(t, "c", gm.Fetch("k"))
	assert.Equal(t, []any{1}, a["list"], "inputs are not modified")

	got, err = deepmerge.Merge(deepmerge.Options{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMergeMarshalKeepsOrder(t *testing.T) {
	base := []byte("zeta: 1\nalpha:\n  y: 1\n  x: 2\n")
	overlay := []byte("alpha:\n  w: 3\n  y: 4\nbeta: true\n")

	got, err := mergeYAML(base, overlay)
	require.NoError(t, err)
	assert.Equal(t, "zeta: 1\nalpha:\n  y: 4\n  x: 2\n  w: 3\nbeta: true\n", string(got))
}

func TestMergeMarshalEmpty(t *testing.T) {
	got, err := mergeYAML()
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = mergeYAML([]byte(""), []byte("a: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(got))
}

func TestMergeMarshalError(t *testing.T) {
	_, err := mergeYAML([]byte("a: 1\n"), []byte("a: [1\n"))
	require.ErrorIs(t, err, deepmerge.ErrMarshal)

	var marshalErr *deepmerge.MarshalError
	require.ErrorAs(t, err, &marshalErr)
	assert.Equal(t, 1, marshalErr.DocIndex)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestMergerLogsDebugRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m, err := deepmerge.NewMerger(deepmerge.Options{Logger: logger})
	require.NoError(t, err)

	target := deepmerge.MapOf("x", deepmerge.NewList(1))
	target.Set("self", target)
	_, err = m.DeepMergeInto(target, deepmerge.MapOf("x", deepmerge.NewList(2), "self", target), deepmerge.Union)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "strategy=union")
	assert.Contains(t, out, "path=x")
	assert.Contains(t, out, "already visited")
}

func TestConcurrentMergers(t *testing.T) {
	strategies := []deepmerge.Strategy{deepmerge.Replace, deepmerge.Concat, deepmerge.Union}
	want := [][]any{{2, 3}, {1, 2, 2, 3}, {1, 2, 3}}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 30; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			m, err := deepmerge.NewMerger(deepmerge.Options{})
			if err != nil {
				errs <- err
				return
			}
			m.SetStrategy(strategies[g%3])

			for i := 0; i < 50; i++ {
				target := deepmerge.MapOf("x", deepmerge.NewList(1, 2))
				target.Set("self", target)
				got, err := m.DeepMerge(target, deepmerge.MapOf("x", deepmerge.NewList(2, 3)), nil)
				if err != nil {
					errs <- err
					return
				}
				gm := got.(*deepmerge.Map)
				if !deepmerge.Equal(want[g%3], gm.Fetch("x")) || gm.Fetch("self") != any(gm) {
					errs <- errors.New("unexpected result " + gm.String())
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// custom is a user-defined Mergeable that accepts anything.
type custom struct {
	kind string
	err  error
}

func (c custom) CanMerge(other any) bool { return true }

func (c custom) MergeFrom(_ *deepmerge.Merger, other any) error {
	if c.kind == "fail" {
		return c.err
	}
	return nil
}

// counter is a Mergeable that sums integers and merges children through the Merger.
type counter struct {
	total int
	child any
}

func (c *counter) CanMerge(other any) bool {
	_, ok := other.(*counter)
	return ok
}

func (c *counter) MergeFrom(m *deepmerge.Merger, other any) error {
	o := other.(*counter)
	c.total += o.total
	merged, err := m.Combine(c.child, o.child)
	if err != nil {
		return err
	}
	c.child = merged
	return nil
}

func TestCustomMergeable(t *testing.T) {
	target := deepmerge.MapOf("c", &counter{total: 1, child: deepmerge.NewList("a")}, "n", &counter{total: 5})
	_, err := deepmerge.DeepMergeInto(target, deepmerge.MapOf(
		"c", &counter{total: 2, child: deepmerge.NewList("b")},
		"n", 7,
	), nil)
	require.NoError(t, err)

	c := target.Fetch("c").(*counter)
	assert.Equal(t, 3, c.total)
	assert.Equal(t, []any{"a", "b"}, c.child.(*deepmerge.List).Items())
	assert.Equal(t, 7, target.Fetch("n"), "incompatible values replace")
}

func TestMapConverterSource(t *testing.T) {
	target := deepmerge.MapOf("x", 1)
	_, err := deepmerge.DeepMergeInto(target, converted{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "converter", target.Fetch("from"))

	list := deepmerge.NewList(1)
	_, err = deepmerge.DeepMergeInto(list, converted{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, "from converter"}, list.Items())
}

func TestMergeYAMLMapSliceSource(t *testing.T) {
	target := deepmerge.MapOf("a", 1)
	_, err := deepmerge.DeepMergeInto(target, yaml.MapSlice{{Key: "c", Value: 3}, {Key: 2, Value: "two"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "2"}, target.Keys())
	assert.True(t, strings.HasSuffix(target.String(), "2:two]"))
}

func TestMergeNativeChildren(t *testing.T) {
	got, err := deepmerge.DeepMerge(
		deepmerge.MapOf("x", []any{1, 2}),
		deepmerge.MapOf("x", []any{2, 3}),
		deepmerge.Concat,
	)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 2, 3}, got.(*deepmerge.Map).Fetch("x").(*deepmerge.List).Items())

	target := deepmerge.MapOf(
		"x", map[string]any{"a": 1},
		"tags", []string{"a"},
		"scalar", []any{1},
	)
	_, err = deepmerge.DeepMergeInto(target, deepmerge.MapOf(
		"x", deepmerge.MapOf("b", 2),
		"tags", []string{"a", "b"},
		"scalar", "replaced",
	), deepmerge.Union)
	require.NoError(t, err)

	x, ok := target.Fetch("x").(*deepmerge.Map)
	require.True(t, ok, "native maps are converted in place of the original")
	assert.Equal(t, []string{"a", "b"}, x.Keys())
	assert.Equal(t, []any{"a", "b"}, target.Fetch("tags").(*deepmerge.List).Items())
	assert.Equal(t, "replaced", target.Fetch("scalar"), "incompatible values replace")
}
