// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/deepmerge"
	"github.com/sam-fredrickson/deepmerge/internal/codec"
)

// KRM annotation constants.
const (
	// AnnotationBase is the base prefix for all deepmerge annotations.
	AnnotationBase = "config.deepmerge.io/"

	// AnnotationID is a correlation key grouping ConfigMaps for a single merge operation.
	AnnotationID = AnnotationBase + "id"

	// AnnotationOrder defines the merge order for ConfigMaps with the same ID.
	// Lower numbers are merged first. The ConfigMap with order=0 is the base.
	AnnotationOrder = AnnotationBase + "order"

	// AnnotationFinalName specifies the desired metadata.name of the final merged ConfigMap.
	// Must be present on the base ConfigMap (order=0).
	AnnotationFinalName = AnnotationBase + "final-name"

	// AnnotationStrategy names the list strategy used when this ConfigMap's data is
	// merged in, e.g. "union" or "keyed:name".
	AnnotationStrategy = AnnotationBase + "strategy"

	// AnnotationFields assigns strategies to key paths, as comma-separated
	// path=strategy pairs. Example: "services=keyed:name,services.ports=union".
	AnnotationFields = AnnotationBase + "fields"
)

// TypeMeta describes an individual object in a ResourceList.
type TypeMeta struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Kind       string `yaml:"kind" json:"kind"`
}

// ObjectMeta is metadata that all persisted resources must have.
type ObjectMeta struct {
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ConfigMap represents a Kubernetes ConfigMap resource.
type ConfigMap struct {
	TypeMeta   `yaml:",inline" json:",inline"`
	ObjectMeta `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Data       map[string]string `yaml:"data,omitempty" json:"data,omitempty"`
}

// ResourceList is the input/output format for KRM functions.
// See: https://github.com/kubernetes-sigs/kustomize/blob/master/cmd/config/docs/api-conventions/functions-spec.md
type ResourceList struct {
	APIVersion string           `yaml:"apiVersion" json:"apiVersion"`
	Kind       string           `yaml:"kind" json:"kind"`
	Items      []map[string]any `yaml:"items" json:"items"`
}

// configMapGroup is a set of ConfigMaps with the same ID, sorted by order.
type configMapGroup struct {
	id         string
	configMaps []*orderedConfigMap
}

// orderedConfigMap wraps a ConfigMap with its merge order and the merger for its data.
type orderedConfigMap struct {
	order     int
	configMap ConfigMap
	merger    *deepmerge.Merger
	finalName string // only set on base (order=0)
}

// Run executes the KRM function, reading a ResourceList from in and writing the result to out.
// Merged ConfigMaps follow the passthrough resources, sorted by group ID.
func Run(in io.Reader, out io.Writer, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	rl, err := readResourceList(in)
	if err != nil {
		return fmt.Errorf("failed to read ResourceList: %w", err)
	}

	groups, passthrough, err := groupConfigMaps(rl, log)
	if err != nil {
		return fmt.Errorf("failed to group ConfigMaps: %w", err)
	}

	items := passthrough
	for _, id := range slices.Sorted(maps.Keys(groups)) {
		group := groups[id]
		merged, err := mergeConfigMapGroup(group)
		if err != nil {
			return fmt.Errorf("failed to merge ConfigMap group %q: %w", id, err)
		}
		log.Info("merged ConfigMap group", "id", id, "configMaps", len(group.configMaps))
		items = append(items, merged)
	}

	outputRL := ResourceList{
		APIVersion: "config.kubernetes.io/v1",
		Kind:       "ResourceList",
		Items:      items,
	}
	if err := writeResourceList(out, outputRL); err != nil {
		return fmt.Errorf("failed to write ResourceList: %w", err)
	}
	return nil
}

func readResourceList(r io.Reader) (*ResourceList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var rl ResourceList
	if err := yaml.Unmarshal(data, &rl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ResourceList: %w", err)
	}
	return &rl, nil
}

func writeResourceList(w io.Writer, rl ResourceList) error {
	data, err := yaml.Marshal(rl)
	if err != nil {
		return fmt.Errorf("failed to marshal ResourceList: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// groupConfigMaps separates annotated ConfigMaps from passthrough resources.
func groupConfigMaps(rl *ResourceList, log *slog.Logger) (map[string]*configMapGroup, []map[string]any, error) {
	groups := make(map[string]*configMapGroup)
	var passthrough []map[string]any

	for _, item := range rl.Items {
		cm, isConfigMap, err := parseConfigMap(item)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse resource: %w", err)
		}

		id := cm.Annotations[AnnotationID]
		if !isConfigMap || id == "" {
			passthrough = append(passthrough, item)
			continue
		}

		ocm, err := parseConfigMapAnnotations(cm, log)
		if err != nil {
			return nil, nil, fmt.Errorf("ConfigMap %q: %w", cm.Name, err)
		}

		if groups[id] == nil {
			groups[id] = &configMapGroup{id: id}
		}
		groups[id].configMaps = append(groups[id].configMaps, ocm)
	}

	for id, group := range groups {
		if err := prepareGroup(group); err != nil {
			return nil, nil, fmt.Errorf("ConfigMap group %q: %w", id, err)
		}
	}
	return groups, passthrough, nil
}

// parseConfigMap attempts to parse a resource item as a ConfigMap.
func parseConfigMap(item map[string]any) (ConfigMap, bool, error) {
	apiVersion, _ := item["apiVersion"].(string)
	kind, _ := item["kind"].(string)
	if kind != "ConfigMap" {
		return ConfigMap{}, false, nil
	}

	data, err := yaml.Marshal(item)
	if err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to marshal item: %w", err)
	}
	var cm ConfigMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to unmarshal ConfigMap: %w", err)
	}

	if cm.APIVersion == "" {
		cm.APIVersion = apiVersion
	}
	if cm.Kind == "" {
		cm.Kind = kind
	}
	return cm, true, nil
}

// parseConfigMapAnnotations reads the order, final name and merge options of a ConfigMap.
func parseConfigMapAnnotations(cm ConfigMap, log *slog.Logger) (*orderedConfigMap, error) {
	annotations := cm.Annotations

	orderStr := annotations[AnnotationOrder]
	if orderStr == "" {
		return nil, fmt.Errorf("missing required annotation %q", AnnotationOrder)
	}
	order, err := strconv.Atoi(strings.TrimSpace(orderStr))
	if err != nil {
		return nil, fmt.Errorf("invalid %q annotation: %w", AnnotationOrder, err)
	}

	opts, err := parseMergeOptions(annotations)
	if err != nil {
		return nil, fmt.Errorf("failed to parse merge options: %w", err)
	}
	opts.Logger = log.With("configMap", cm.Name)

	merger, err := deepmerge.NewMerger(opts)
	if err != nil {
		return nil, err
	}

	return &orderedConfigMap{
		order:     order,
		configMap: cm,
		merger:    merger,
		finalName: annotations[AnnotationFinalName],
	}, nil
}

// parseMergeOptions extracts deepmerge.Options from annotations. Without a strategy
// annotation the process default applies.
func parseMergeOptions(annotations map[string]string) (deepmerge.Options, error) {
	var opts deepmerge.Options

	if name := strings.TrimSpace(annotations[AnnotationStrategy]); name != "" {
		s, err := deepmerge.ParseStrategy(name)
		if err != nil {
			return opts, fmt.Errorf("invalid %q annotation: %w", AnnotationStrategy, err)
		}
		opts.Strategy = s
	}

	if fields := strings.TrimSpace(annotations[AnnotationFields]); fields != "" {
		opts.FieldStrategies = make(map[string]deepmerge.Strategy)
		for rule := range strings.SplitSeq(fields, ",") {
			path, name, ok := strings.Cut(rule, "=")
			path = strings.TrimSpace(path)
			if !ok || path == "" {
				return opts, fmt.Errorf("invalid %q annotation: rule %q is not path=strategy", AnnotationFields, rule)
			}
			s, err := deepmerge.ParseStrategy(strings.TrimSpace(name))
			if err != nil {
				return opts, fmt.Errorf("invalid %q annotation: field %s: %w", AnnotationFields, path, err)
			}
			opts.FieldStrategies[path] = s
		}
	}

	return opts, nil
}

// prepareGroup sorts a group by order and validates it.
func prepareGroup(group *configMapGroup) error {
	slices.SortStableFunc(group.configMaps, func(a, b *orderedConfigMap) int {
		return a.order - b.order
	})

	if len(group.configMaps) == 0 {
		return fmt.Errorf("empty ConfigMap group")
	}

	base := group.configMaps[0]
	if base.order != 0 {
		return fmt.Errorf("no base ConfigMap with order=0 (lowest order is %d)", base.order)
	}
	if len(group.configMaps) > 1 && group.configMaps[1].order == 0 {
		return fmt.Errorf("ConfigMaps %q and %q both have order=0",
			base.configMap.Name, group.configMaps[1].configMap.Name)
	}
	if base.finalName == "" {
		return fmt.Errorf("base ConfigMap %q missing required annotation %q", base.configMap.Name, AnnotationFinalName)
	}
	return nil
}

// mergeConfigMapGroup merges all ConfigMaps in a group into a single ConfigMap.
func mergeConfigMapGroup(group *configMapGroup) (map[string]any, error) {
	base := group.configMaps[0]

	allKeys := make(map[string]struct{})
	for _, cm := range group.configMaps {
		for key := range cm.configMap.Data {
			allKeys[key] = struct{}{}
		}
	}

	mergedData := make(map[string]string)
	for _, dataKey := range slices.Sorted(maps.Keys(allKeys)) {
		merged, err := mergeDataKey(group, dataKey)
		if err != nil {
			return nil, fmt.Errorf("failed to merge data key %q: %w", dataKey, err)
		}
		if merged != "" {
			mergedData[dataKey] = merged
		}
	}

	result := ConfigMap{
		TypeMeta: TypeMeta{
			APIVersion: "v1",
			Kind:       "ConfigMap",
		},
		ObjectMeta: ObjectMeta{
			Name:        base.finalName,
			Namespace:   base.configMap.Namespace,
			Annotations: filterDeepmergeAnnotations(base.configMap.Annotations),
			Labels:      base.configMap.Labels,
		},
		Data: mergedData,
	}

	data, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged ConfigMap: %w", err)
	}
	var resultMap map[string]any
	if err := yaml.Unmarshal(data, &resultMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged ConfigMap: %w", err)
	}
	return resultMap, nil
}

// mergeDataKey merges a single data key across the ConfigMaps of a group that carry it.
// Each overlay is merged in with its own ConfigMap's options.
func mergeDataKey(group *configMapGroup, dataKey string) (string, error) {
	var present []*orderedConfigMap
	for _, cm := range group.configMaps {
		if value := cm.configMap.Data[dataKey]; value != "" {
			present = append(present, cm)
		}
	}
	switch len(present) {
	case 0:
		return "", nil
	case 1:
		return present[0].configMap.Data[dataKey], nil
	}

	format := formatOfKey(dataKey)
	var result any
	for _, cm := range present {
		doc, err := format.Unmarshal([]byte(cm.configMap.Data[dataKey]))
		if err != nil {
			return "", fmt.Errorf("ConfigMap %q (format: %s): %w", cm.configMap.Name, format, err)
		}
		result, err = cm.merger.Merge(result, doc)
		if err != nil {
			return "", fmt.Errorf("ConfigMap %q (format: %s): %w", cm.configMap.Name, format, err)
		}
	}

	out, err := format.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", format, err)
	}
	return string(out), nil
}

// formatOfKey detects the format from the data key name (e.g. "config.yaml" is YAML).
// Keys without a known extension are treated as YAML, which is common in Kubernetes.
func formatOfKey(dataKey string) codec.Format {
	f, err := codec.FormatOf(dataKey)
	if err != nil {
		return codec.YAML
	}
	return f
}

// filterDeepmergeAnnotations removes config.deepmerge.io annotations from a map.
func filterDeepmergeAnnotations(annotations map[string]string) map[string]string {
	filtered := make(map[string]string)
	for key, value := range annotations {
		if !strings.HasPrefix(key, AnnotationBase) {
			filtered[key] = value
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
