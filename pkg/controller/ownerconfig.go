/*
Copyright 2025 The Kubernetes resource-state-metrics Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"fmt"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

// RelationRule declares one data-first relation trigger (spec.md §4.4
// "Relation trigger"): auxiliary objects whose labels match Selector are
// mapped to an owner ref built from their own namespace plus the label
// value read from NameFromLabel. Grounded on the teacher's internal/config.go
// YAML-driven store configuration, adapted from "which stores to build" to
// "which owner a labeled auxiliary object maps to".
type RelationRule struct {
	Group         string            `yaml:"group"`
	Version       string            `yaml:"version"`
	Kind          string            `yaml:"kind"`
	Resource      string            `yaml:"resource"`
	LabelSelector map[string]string `yaml:"labelSelector"`
	NameFromLabel string            `yaml:"nameFromLabel"`
}

// RelationConfig is the top-level YAML document shape: a list of rules, the
// same "stores: [...]" structuring style the teacher's configuration.go
// uses for its own YAML document.
type RelationConfig struct {
	Rules []RelationRule `yaml:"rules"`
}

// ParseRelationConfig unmarshals a YAML document into a RelationConfig.
func ParseRelationConfig(raw []byte) (*RelationConfig, error) {
	var cfg RelationConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing relation config: %w", err)
	}

	return &cfg, nil
}

// Mapper builds a single RelationMapper that evaluates every rule in order,
// returning the union of refs any matching rule produces for obj.
func (c *RelationConfig) Mapper() RelationMapper {
	rules := make([]compiledRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, compiledRule{
			gvk:           schema.GroupVersionKind{Group: r.Group, Version: r.Version, Kind: r.Kind},
			resource:      r.Resource,
			labelSelector: r.LabelSelector,
			nameFromLabel: r.NameFromLabel,
		})
	}

	return func(obj transport.Object) []objectref.ObjectRef {
		var refs []objectref.ObjectRef
		for _, rule := range rules {
			ref, ok := rule.apply(obj)
			if ok {
				refs = append(refs, ref)
			}
		}

		return refs
	}
}

type compiledRule struct {
	gvk           schema.GroupVersionKind
	resource      string
	labelSelector map[string]string
	nameFromLabel string
}

func (r compiledRule) apply(obj transport.Object) (objectref.ObjectRef, bool) {
	labels := obj.GetLabels()
	for k, v := range r.labelSelector {
		if labels[k] != v {
			return objectref.ObjectRef{}, false
		}
	}

	name, ok := labels[r.nameFromLabel]
	if !ok || name == "" {
		return objectref.ObjectRef{}, false
	}

	return objectref.New(r.gvk, r.resource, obj.GetNamespace(), name), true
}
