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

// Package objectref provides the canonical identity used across the watcher,
// store, and scheduler to address a single cluster resource instance.
package objectref

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Object is the capability set every object handled by this module must
// expose. A concrete transport.Object (or any Kubernetes typed/unstructured
// object satisfying metav1.Object plus a GroupVersionKind) implements this.
type Object interface {
	GetName() string
	GetNamespace() string
	GetResourceVersion() string
	GetGeneration() int64
	GetLabels() map[string]string
	GetAnnotations() map[string]string
	GetOwnerReferences() []OwnerReference
	GroupVersionKind() schema.GroupVersionKind
}

// OwnerReference mirrors the subset of metav1.OwnerReference the owner
// trigger (spec.md §4.4) needs to walk from an auxiliary object back to its
// owning primary-kind object.
type OwnerReference struct {
	Group string
	Kind  string
	Name  string
	UID   string
}

// ObjectRef is the canonical key `(group, version, kind, plural, namespace?, name)`.
// It is a plain value: comparable, hashable (usable as a map key), and
// value-copied freely. The plural (Resource) is carried alongside the Kind so
// that a dynamic caller can round-trip straight back into a REST call without
// a second RESTMapper lookup.
type ObjectRef struct {
	schema.GroupVersionKind
	Resource  string
	Namespace string // empty for cluster-scoped objects
	Name      string
}

// New builds an ObjectRef for a namespaced or cluster-scoped object from its
// static identity and instance identity. Pass an empty namespace for
// cluster-scoped kinds.
func New(gvk schema.GroupVersionKind, resource, namespace, name string) ObjectRef {
	return ObjectRef{
		GroupVersionKind: gvk,
		Resource:         resource,
		Namespace:        namespace,
		Name:             name,
	}
}

// FromObject derives an ObjectRef from a live object, per spec.md §3:
// "Every object present is addressable by ObjectRef::from(obj)".
func FromObject(resource string, obj Object) ObjectRef {
	return ObjectRef{
		GroupVersionKind: obj.GroupVersionKind(),
		Resource:         resource,
		Namespace:        obj.GetNamespace(),
		Name:             obj.GetName(),
	}
}

// WithName returns a copy of r addressing a different name in the same
// scope: kind, resource and namespace are kept, only Name changes.
func (r ObjectRef) WithName(name string) ObjectRef {
	r.Name = name

	return r
}

// String renders the ref in "group/version, Kind=Kind, Name=namespace/name"
// form, or "group/version, Kind=Kind, Name=name" for cluster-scoped refs.
func (r ObjectRef) String() string {
	gvk := r.GroupVersionKind.String()
	if r.Namespace == "" {
		return fmt.Sprintf("%s, Name=%s", gvk, r.Name)
	}

	return fmt.Sprintf("%s, Name=%s/%s", gvk, r.Namespace, r.Name)
}

// Key returns the "namespace/name" form (just "name" for cluster-scoped
// refs). It drops the kind, so two distinct kinds sharing a namespace/name
// yield the same Key; the scheduler and store key their maps on the full
// ObjectRef instead.
func (r ObjectRef) Key() string {
	if r.Namespace == "" {
		return r.Name
	}

	return r.Namespace + "/" + r.Name
}
