// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/goccy/go-yaml"
)

// UnmarshalYAML decodes a YAML document into v, decoding mappings as yaml.MapSlice so
// that key order survives a merge. It has the signature [MergeMarshal] expects.
func UnmarshalYAML(data []byte, v any) error {
	return yaml.UnmarshalWithOptions(data, v, yaml.UseOrderedMap())
}

// UnmarshalJSON decodes a JSON document into v, keeping object key order like
// [UnmarshalYAML].
func UnmarshalJSON(data []byte, v any) error {
	if !json.Valid(data) {
		// let encoding/json describe the syntax error
		var probe any
		return json.Unmarshal(data, &probe)
	}
	return yaml.UnmarshalWithOptions(data, v, yaml.UseOrderedMap())
}

// MarshalYAML encodes the map as an ordered YAML mapping.
func (m *Map) MarshalYAML() (any, error) {
	return orderedTree(m)
}

// UnmarshalYAML replaces the map's contents with a decoded YAML mapping, in document order.
func (m *Map) UnmarshalYAML(data []byte) error {
	var raw any
	if err := UnmarshalYAML(data, &raw); err != nil {
		return err
	}
	return m.replaceWith(raw)
}

// MarshalJSON encodes the map as a JSON object with keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	tree, err := orderedTree(m)
	if err != nil {
		return nil, err
	}
	return appendJSON(nil, tree)
}

// UnmarshalJSON replaces the map's contents with a decoded JSON object, in document order.
func (m *Map) UnmarshalJSON(data []byte) error {
	var raw any
	if err := UnmarshalJSON(data, &raw); err != nil {
		return err
	}
	return m.replaceWith(raw)
}

func (m *Map) replaceWith(raw any) error {
	conv, ok := FromNative(raw).(*Map)
	if !ok {
		return &UnsupportedSourceError{Want: "map", Source: raw}
	}
	m.keys, m.values = conv.keys, conv.values
	return nil
}

// MarshalYAML encodes the list as a YAML sequence.
func (l *List) MarshalYAML() (any, error) {
	return orderedTree(l)
}

// UnmarshalYAML replaces the list's contents with a decoded YAML sequence.
func (l *List) UnmarshalYAML(data []byte) error {
	var raw any
	if err := UnmarshalYAML(data, &raw); err != nil {
		return err
	}
	return l.replaceWith(raw)
}

// MarshalJSON encodes the list as a JSON array.
func (l *List) MarshalJSON() ([]byte, error) {
	tree, err := orderedTree(l)
	if err != nil {
		return nil, err
	}
	return appendJSON(nil, tree)
}

// UnmarshalJSON replaces the list's contents with a decoded JSON array.
func (l *List) UnmarshalJSON(data []byte) error {
	var raw any
	if err := UnmarshalJSON(data, &raw); err != nil {
		return err
	}
	return l.replaceWith(raw)
}

func (l *List) replaceWith(raw any) error {
	conv, ok := FromNative(raw).(*List)
	if !ok {
		return &UnsupportedSourceError{Want: "list", Source: raw}
	}
	l.items = conv.items
	return nil
}

// orderedTree rebuilds v from yaml.MapSlice and []any so that encoders see every
// map in order. Documents cannot express cycles, so a cycle is an error.
func orderedTree(v any) (any, error) {
	return buildTree(v, nil)
}

func buildTree(v any, stack []identity) (any, error) {
	var (
		out any
		err error
	)
	if id, ok := identityOf(v); ok {
		if slices.Contains(stack, id) {
			return nil, fmt.Errorf("%w: cyclic value of type %T cannot be encoded", ErrMarshal, v)
		}
		stack = append(stack, id)
	}

	switch t := v.(type) {
	case *Map, yaml.MapSlice:
		m, ok := asMap(t)
		if !ok {
			break
		}
		ms := make(yaml.MapSlice, 0, m.Len())
		for key, value := range m.All() {
			if value, err = buildTree(value, stack); err != nil {
				return nil, err
			}
			ms = append(ms, yaml.MapItem{Key: key, Value: value})
		}
		out = ms
	case map[string]any:
		ms := make(yaml.MapSlice, 0, len(t))
		for _, key := range slices.Sorted(maps.Keys(t)) {
			value, err := buildTree(t[key], stack)
			if err != nil {
				return nil, err
			}
			ms = append(ms, yaml.MapItem{Key: key, Value: value})
		}
		out = ms
	case *List, []any:
		l, ok := asList(t)
		if !ok {
			break
		}
		items := make([]any, l.Len())
		for i, item := range l.items {
			if items[i], err = buildTree(item, stack); err != nil {
				return nil, err
			}
		}
		out = items
	default:
		out = v
	}
	return out, nil
}

// appendJSON encodes an ordered tree. Scalars and unknown types go through encoding/json.
func appendJSON(buf []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case yaml.MapSlice:
		buf = append(buf, '{')
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			key, err := json.Marshal(keyString(item.Key))
			if err != nil {
				return nil, err
			}
			buf = append(append(buf, key...), ':')
			if buf, err = appendJSON(buf, item.Value); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	case []any:
		buf = append(buf, '[')
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendJSON(buf, item); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}
