// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrInvalidTag indicates a dm struct tag contains an invalid directive or value.
var ErrInvalidTag = errors.New("invalid struct tag")

// TagKind identifies which dm struct tag directive had an error.
type TagKind int

const (
	// UnknownTag indicates an unknown or unsupported dm tag directive.
	UnknownTag TagKind = iota
	// PrimaryTag indicates an error with the dm:"primary" directive.
	PrimaryTag
	// StrategyTag indicates an error with a dm:"strategy=..." directive.
	StrategyTag
	// KeyTag indicates an error with a dm:"key=..." directive.
	KeyTag
	// FieldTag indicates an error with a dm:"field=..." directive.
	FieldTag
)

func (k TagKind) String() string {
	switch k {
	case UnknownTag:
		return "unknown"
	case PrimaryTag:
		return "primary"
	case StrategyTag:
		return "strategy"
	case KeyTag:
		return "key"
	case FieldTag:
		return "field"
	default:
		return fmt.Sprintf("TagKind(%d)", k)
	}
}

// InvalidTagError is returned when a dm struct tag contains an invalid directive or value.
type InvalidTagError struct {
	// Kind indicates which dm tag directive had the error.
	Kind TagKind
	// FieldName is the struct field name where the error occurred.
	FieldName string
	// Value is the invalid value (e.g., the unknown strategy name).
	Value string
	// Message provides details about what went wrong.
	Message string
}

func (e *InvalidTagError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %s: invalid %s tag: %s (value: %q)",
			e.FieldName, e.Kind.String(), e.Message, e.Value)
	}
	return fmt.Sprintf("field %s: invalid %s tag: %s",
		e.FieldName, e.Kind.String(), e.Message)
}

func (e *InvalidTagError) Is(target error) bool {
	return target == ErrInvalidTag
}

// fieldMetadata holds the merge rules for one map key and the keys below it.
// Lists are transparent: the children of a list field describe its items' keys.
type fieldMetadata struct {
	fieldName  string
	strategy   Strategy
	primaryKey string
	children   map[string]*fieldMetadata
}

// child returns the rules for key, or nil. It is safe to call on nil.
func (f *fieldMetadata) child(key string) *fieldMetadata {
	if f == nil {
		return nil
	}
	return f.children[key]
}

// NewTypedMerger creates a [Merger] whose list strategies come from the dm struct
// tags of T, which describes the shape of the documents being merged.
//
// Struct tag format:
//   - dm:"strategy=replace|concat|union|keyed|keyed:<key>" - strategy for this list field
//   - dm:"key=<name>" - shorthand for strategy=keyed:<name>
//   - dm:"primary" - lists of this struct type are keyed by this field
//   - dm:"field=<name>" - overrides field name detection (for non-standard serialization)
//
// Multiple directives can be combined: dm:"field=svc,key=name"
//
// Field names are automatically detected from yaml, json, and toml struct tags.
// Entries in [Options.FieldStrategies] take precedence over tags for the same path.
//
// Example:
//
//	type Config struct {
//		Services []Service `yaml:"services"`
//		Tags     []string  `yaml:"tags" dm:"strategy=union"`
//	}
//
//	type Service struct {
//		Name string `yaml:"name" dm:"primary"`
//		URL  string `yaml:"url"`
//	}
//
//	merger, _ := NewTypedMerger[Config](Options{})
//	result, _ := merger.MergeMarshal(UnmarshalYAML, yaml.Marshal, doc1, doc2)
func NewTypedMerger[T any](opts Options) (*Merger, error) {
	meta, err := buildMetadata(reflect.TypeOf((*T)(nil)).Elem(), map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	meta, err = buildPathMetadata(meta, opts.FieldStrategies)
	if err != nil {
		return nil, err
	}
	return newMerger(opts, meta), nil
}

// buildPathMetadata adds the rules of [Options.FieldStrategies] to root, creating
// root if necessary. It returns nil when there are no rules at all.
func buildPathMetadata(root *fieldMetadata, paths map[string]Strategy) (*fieldMetadata, error) {
	if len(paths) == 0 {
		return root, nil
	}
	if root == nil {
		root = &fieldMetadata{}
	}
	for path, strategy := range paths {
		if isNil(strategy) {
			return nil, fmt.Errorf("%w: nil strategy for field %q", ErrInvalidOptions, path)
		}
		node := root
		for _, key := range strings.Split(path, ".") {
			if key == "" {
				return nil, fmt.Errorf("%w: empty key in field path %q", ErrInvalidOptions, path)
			}
			next := node.child(key)
			if next == nil {
				next = &fieldMetadata{fieldName: key}
				if node.children == nil {
					node.children = make(map[string]*fieldMetadata)
				}
				node.children[key] = next
			}
			node = next
		}
		node.strategy = strategy
	}
	return root, nil
}

// buildMetadata recursively builds a metadata tree from a type's struct tags.
// Types already being built are skipped, so recursive types terminate.
func buildMetadata(t reflect.Type, building map[reflect.Type]bool) (*fieldMetadata, error) {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return &fieldMetadata{}, nil
	}
	if building[t] {
		return &fieldMetadata{primaryKey: directPrimaryKey(t)}, nil
	}
	building[t] = true
	defer delete(building, t)

	root := &fieldMetadata{
		children: make(map[string]*fieldMetadata),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldName, err := getFieldName(field)
		if err != nil {
			return nil, err
		}

		meta := &fieldMetadata{fieldName: fieldName}
		primary := false
		if tag := field.Tag.Get("dm"); tag != "" {
			if primary, err = parseDMTag(tag, field.Name, meta); err != nil {
				return nil, err
			}
		}

		if primary {
			if root.primaryKey != "" {
				return nil, &InvalidTagError{
					Kind:      PrimaryTag,
					FieldName: field.Name,
					Message:   fmt.Sprintf("struct already keyed by %q", root.primaryKey),
				}
			}
			if !field.Type.Comparable() {
				return nil, &InvalidTagError{
					Kind:      PrimaryTag,
					FieldName: field.Name,
					Message:   fmt.Sprintf("primary key field must be comparable type, got %s", field.Type.String()),
				}
			}
			root.primaryKey = fieldName
		}

		// Unwrap pointer, slice, and array types to get to the item type
		fieldType := field.Type
		isList := false
		for {
			switch fieldType.Kind() {
			case reflect.Pointer:
				fieldType = fieldType.Elem()
				continue
			case reflect.Slice, reflect.Array:
				isList = true
				fieldType = fieldType.Elem()
				continue
			}
			break
		}

		if fieldType.Kind() == reflect.Struct {
			items, err := buildMetadata(fieldType, building)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			meta.children = items.children
			if isList && meta.strategy == nil && items.primaryKey != "" {
				meta.strategy = KeyBased{Key: items.primaryKey}
			}
		}

		root.children[fieldName] = meta
	}

	return root, nil
}

// directPrimaryKey returns the name of t's primary field without validating
// or descending into t. It serves types that refer to themselves.
func directPrimaryKey(t reflect.Type) string {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		for _, part := range strings.Split(field.Tag.Get("dm"), ",") {
			if strings.TrimSpace(part) == "primary" {
				name, _ := getFieldName(field)
				return name
			}
		}
	}
	return ""
}

// getFieldName extracts the serialized field name from struct tags.
// Priority: dm:field override > yaml > json > toml > struct field name.
func getFieldName(field reflect.StructField) (string, error) {
	if tag := field.Tag.Get("dm"); tag != "" {
		fieldName, err := extractFieldDirective(tag)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", field.Name, err)
		}
		if fieldName != "" {
			return fieldName, nil
		}
	}

	for _, tagName := range []string{"yaml", "json", "toml"} {
		if tag := field.Tag.Get(tagName); tag != "" && tag != "-" {
			// Handle "name,omitempty,inline" format - take first part
			if name, _, _ := strings.Cut(tag, ","); name != "" {
				return name, nil
			}
		}
	}

	return field.Name, nil
}

// extractFieldDirective extracts the field=name directive from a dm tag.
func extractFieldDirective(tag string) (string, error) {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if name, ok := strings.CutPrefix(part, "field="); ok {
			if name == "" {
				return "", &InvalidTagError{
					Kind:    FieldTag,
					Value:   part,
					Message: "field name cannot be empty",
				}
			}
			return name, nil
		}
	}
	return "", nil
}

// parseDMTag parses a dm struct tag into meta and reports whether the field is
// marked primary.
func parseDMTag(tag, goName string, meta *fieldMetadata) (primary bool, err error) {
	setStrategy := func(kind TagKind, value string, s Strategy) error {
		if meta.strategy != nil {
			return &InvalidTagError{
				Kind:      kind,
				FieldName: goName,
				Value:     value,
				Message:   "strategy already set for this field",
			}
		}
		meta.strategy = s
		return nil
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "primary":
			primary = true
		case strings.HasPrefix(part, "strategy="):
			value := strings.TrimPrefix(part, "strategy=")
			s, perr := ParseStrategy(value)
			if perr != nil {
				return false, &InvalidTagError{
					Kind:      StrategyTag,
					FieldName: goName,
					Value:     value,
					Message:   "valid: replace, concat, union, keyed, keyed:<key>",
				}
			}
			if err := setStrategy(StrategyTag, value, s); err != nil {
				return false, err
			}
		case strings.HasPrefix(part, "key="):
			value := strings.TrimPrefix(part, "key=")
			if value == "" {
				return false, &InvalidTagError{
					Kind:      KeyTag,
					FieldName: goName,
					Message:   "key name cannot be empty",
				}
			}
			if err := setStrategy(KeyTag, value, KeyBased{Key: value}); err != nil {
				return false, err
			}
		case strings.HasPrefix(part, "field="):
			// handled by getFieldName
		default:
			return false, &InvalidTagError{
				Kind:      UnknownTag,
				FieldName: goName,
				Value:     part,
				Message:   "unknown dm tag directive",
			}
		}
	}
	return primary, nil
}
