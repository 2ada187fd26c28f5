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

// Package predicate implements the change-detection filter of spec.md
// §4.6: a per-ref fingerprint cache that drops Apply events whose
// projection hasn't changed since the last observation. Grounded on
// kube-runtime's predicate.rs (the Predicate trait and its generation/labels
// projections), translated into Go's comparable-fingerprint idiom since Go
// has no blanket impl over arbitrary PartialEq return types.
package predicate

import (
	"reflect"
	"sync"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

// Projection extracts the part of an object a Filter should watch for
// changes. The built-in Generation and Labels projections mirror
// kube-runtime's predicates::generation and predicates::labels; Annotations
// is a third built-in projection.
type Projection func(obj transport.Object) any

// Generation projects an object's generation, matching kube-runtime's
// predicates::generation.
func Generation(obj transport.Object) any { return obj.GetGeneration() }

// Labels projects an object's label set, matching kube-runtime's
// predicates::labels.
func Labels(obj transport.Object) any {
	labels := obj.GetLabels()
	if labels == nil {
		return map[string]string{}
	}

	// Copy so a caller mutating the live object's map can't silently
	// invalidate a cached fingerprint out from under the Filter.
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}

	return out
}

// Annotations projects an object's annotation set.
func Annotations(obj transport.Object) any {
	annotations := obj.GetAnnotations()
	if annotations == nil {
		return map[string]string{}
	}

	out := make(map[string]string, len(annotations))
	for k, v := range annotations {
		out[k] = v
	}

	return out
}

// Filter is a per-ref fingerprint cache (spec.md §4.6: "Evaluations<K,V>").
// It is safe for concurrent use.
type Filter struct {
	resource   string
	projection Projection

	mu    sync.Mutex
	cache map[objectref.ObjectRef]any
}

// NewFilter returns a Filter that fingerprints objects of the given
// resource (plural) using projection.
func NewFilter(resource string, projection Projection) *Filter {
	return &Filter{
		resource:   resource,
		projection: projection,
		cache:      make(map[objectref.ObjectRef]any),
	}
}

// Touched reports whether obj's projected fingerprint differs from the last
// one recorded for its ref, updating the cache as a side effect. The first
// observation of a ref always reports true (spec.md §4.6: "Initial
// observation of a ref always passes").
func (f *Filter) Touched(obj transport.Object) bool {
	ref := objectref.FromObject(f.resource, obj)
	val := f.projection(obj)

	f.mu.Lock()
	defer f.mu.Unlock()

	old, ok := f.cache[ref]
	f.cache[ref] = val
	if !ok {
		return true
	}

	return !reflect.DeepEqual(old, val)
}

// Forget drops ref's cached fingerprint, so a later observation of the same
// ref (e.g. a re-create after a Delete) is treated as a fresh initial
// observation. The Filter does not see Delete events itself, and neither the
// reflector nor the engine calls Forget; the caller invokes it.
func (f *Filter) Forget(ref objectref.ObjectRef) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.cache, ref)
}

// Len reports the number of refs currently fingerprinted, for metrics.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.cache)
}
