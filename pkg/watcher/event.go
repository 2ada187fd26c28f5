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

package watcher

import "github.com/rexagod/resource-state-metrics/pkg/transport"

// Kind tags the variant of a normalized Event, per spec.md §3.
type Kind int

const (
	// InitStart signals a relist has begun; consumers should buffer.
	InitStart Kind = iota
	// InitApply carries one object from the relist snapshot.
	InitApply
	// InitDone signals the relist is complete; consumers must atomically
	// swap buffered items into the store.
	InitDone
	// Apply carries an add or modify after initialization — the raw
	// Added/Modified distinction is merged here because the store is
	// idempotent on key.
	Apply
	// Delete signals the object has been removed.
	Delete
)

// String renders the Kind for logging.
func (k Kind) String() string {
	switch k {
	case InitStart:
		return "InitStart"
	case InitApply:
		return "InitApply"
	case InitDone:
		return "InitDone"
	case Apply:
		return "Apply"
	case Delete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Event is the normalized watch event emitted by the watcher's relist/watch
// pipeline. Object is nil for InitStart and InitDone.
type Event struct {
	Kind   Kind
	Object transport.Object
}
