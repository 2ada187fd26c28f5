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

// Package transport defines the narrow boundary between this module and the
// typed HTTP client that actually talks to a Kubernetes API server. Per
// spec.md §1, request building, TLS, authentication refresh, and wire codecs
// are explicitly out of scope here — callers plug in an implementation (see
// pkg/clientadapter for a k8s.io/client-go-backed one).
package transport

import (
	"context"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
)

// Object is re-exported so callers implementing a Lister/Watcher do not need
// to import pkg/objectref directly for the metadata contract (spec.md §6).
type Object = objectref.Object

// ListOptions mirrors the subset of metav1.ListOptions the watcher needs.
type ListOptions struct {
	LabelSelector string
	FieldSelector string
	Limit         int64
	Continue      string
}

// ListResult is the result of a single list call, one page of a relist.
type ListResult struct {
	Items           []Object
	ResourceVersion string
	Continue        string
}

// Lister performs a single paginated list call.
type Lister interface {
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// WatchOptions mirrors the subset of the watch request the watcher needs.
type WatchOptions struct {
	ResourceVersion string
	AllowBookmarks  bool
	TimeoutSeconds  int64
}

// RawEventType is the server's wire-level event discriminant, translated by
// pkg/watcher into the normalized vocabulary of spec.md §3.
type RawEventType string

// The five raw event kinds the Kubernetes watch protocol can emit.
const (
	RawEventAdded    RawEventType = "ADDED"
	RawEventModified RawEventType = "MODIFIED"
	RawEventDeleted  RawEventType = "DELETED"
	RawEventBookmark RawEventType = "BOOKMARK"
	RawEventError    RawEventType = "ERROR"
)

// StatusError carries the server's reason for a RawEventError, enough for
// the watcher to distinguish a 410 Gone desync from any other failure.
type StatusError struct {
	Code    int32
	Reason  string
	Message string
}

// RawEvent is a single item off the watch stream.
type RawEvent struct {
	Type           RawEventType
	Object         Object
	BookmarkRV     string // populated when Type == RawEventBookmark
	Status         *StatusError
}

// RawEventStream is an open watch connection. Stop must be safe to call more
// than once and from a goroutine other than the one draining Events.
type RawEventStream interface {
	Events() <-chan RawEvent
	Stop()
}

// Watcher opens a single watch request starting from a resource version.
type Watcher interface {
	Watch(ctx context.Context, opts WatchOptions) (RawEventStream, error)
}

// ListWatcher composes the two operations the watcher's relist/watch pipeline
// consumes (spec.md §6). Implementations are expected to close over a fixed
// kind and selector/namespace scope.
type ListWatcher interface {
	Lister
	Watcher
}

// LeaseClient is the get/create/update surface the lease lock uses against
// the coordination resource (spec.md §6); it has no patch or delete
// operation, and release is done with Update. It operates on a
// single named/namespaced lease resource identified at construction time by
// the caller, so no GVK/selector is threaded through these calls.
type LeaseClient interface {
	Get(ctx context.Context) (*LeaseResource, error)
	Create(ctx context.Context, lease *LeaseResource) (*LeaseResource, error)
	Update(ctx context.Context, lease *LeaseResource) (*LeaseResource, error)
}

// LeaseResource is the durable record described in spec.md §6: holder
// identity, duration, timestamps, and a transition counter ("term"). The
// ResourceVersion field carries the server's optimistic-concurrency token so
// Update calls can be conditional, per spec.md §4.5 step 2/4.
type LeaseResource struct {
	Name                 string
	Namespace            string
	ResourceVersion      string
	HolderIdentity       string
	LeaseDurationSeconds int32
	AcquireTime          int64 // unix seconds
	RenewTime            int64 // unix seconds
	LeaseTransitions     int32
}
