// SPDX-License-Identifier: Apache-2.0

// Package codec reads and writes the document formats the commands merge.
//
// YAML and JSON documents keep their key order. TOML documents are decoded in the
// order their keys appear in the file; TOML output is written in the encoder's order.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/deepmerge"
)

// ErrUnsupportedFormat is returned for format names and file extensions that have no codec.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format names a document format.
type Format string

// Supported formats. Auto means "decide from the input files".
const (
	Auto Format = ""
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

func (f Format) String() string {
	if f == Auto {
		return "auto"
	}
	return string(f)
}

// ParseFormat parses a format name. The empty string and "auto" yield Auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Auto, "auto":
		return Auto, nil
	case JSON, YAML, TOML:
		return f, nil
	case "yml":
		return YAML, nil
	default:
		return Auto, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// FormatOf returns the format implied by name's extension.
func FormatOf(name string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	case ".toml":
		return TOML, nil
	default:
		return Auto, fmt.Errorf("%w: file extension %q", ErrUnsupportedFormat, ext)
	}
}

// Unmarshal decodes data. An empty document decodes to nil.
func (f Format) Unmarshal(data []byte) (any, error) {
	var doc any
	switch f {
	case YAML:
		if err := deepmerge.UnmarshalYAML(data, &doc); err != nil {
			return nil, err
		}
	case JSON:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		if err := deepmerge.UnmarshalJSON(data, &doc); err != nil {
			return nil, err
		}
	case TOML:
		return unmarshalTOML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return doc, nil
}

// Marshal encodes doc, which may hold [deepmerge.Map] and [deepmerge.List] values.
func (f Format) Marshal(doc any) ([]byte, error) {
	switch f {
	case JSON:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case YAML:
		return yaml.Marshal(doc)
	case TOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(deepmerge.ToNative(doc)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// unmarshalTOML decodes data into a [deepmerge.Map] whose keys follow the file.
func unmarshalTOML(data []byte) (any, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}

	// position of every key path; items of table arrays share their array's path
	order := make(map[string]int)
	for i, key := range md.Keys() {
		path := strings.Join(key, "\x00")
		if _, ok := order[path]; !ok {
			order[path] = i
		}
	}
	return orderTOML(raw, "", order), nil
}

func orderTOML(v any, path string, order map[string]int) any {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		pos := func(key string) int {
			if i, ok := order[join(path, key)]; ok {
				return i
			}
			return len(order)
		}
		slices.SortFunc(keys, func(a, b string) int {
			if d := pos(a) - pos(b); d != 0 {
				return d
			}
			return strings.Compare(a, b)
		})
		m := deepmerge.NewMap(len(keys))
		for _, key := range keys {
			m.Set(key, orderTOML(v[key], join(path, key), order))
		}
		return m
	case []map[string]any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = orderTOML(item, path, order)
		}
		return deepmerge.NewList(items...)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = orderTOML(item, path, order)
		}
		return deepmerge.NewList(items...)
	default:
		return v
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "\x00" + key
}
