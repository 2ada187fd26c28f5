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

package store

import (
	"context"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
	"github.com/rexagod/resource-state-metrics/pkg/watcher"
)

// Reflector is the stateless adapter of spec.md §4.2: it consumes a
// watcher's normalized event stream, mutates a Store, and passes every event
// through unchanged so the store and any downstream trigger observe the same
// ordering (grounded on kube-runtime's reflector.rs, which plays the same
// dual role of sink-and-passthrough).
//
// "Stateless" describes the contract the caller sees (no retained state
// across relists survives InitDone); the staging buffer itself is local to
// the single goroutine a Run call owns, never shared, so it needs no lock.
type Reflector struct {
	resource string
	store    *MemStore

	staging map[objectref.ObjectRef]transport.Object
}

// NewReflector returns a Reflector that derives ObjectRefs using resource as
// the plural/resource component (spec.md §3's ObjectRef::from needs this
// since the normalized Object interface carries no resource string).
func NewReflector(resource string, s *MemStore) *Reflector {
	return &Reflector{resource: resource, store: s}
}

// Store returns the Store this reflector writes into, for read access by
// triggers and reconcilers.
func (r *Reflector) Store() Store { return r.store }

// Run drains in, applying every event to the store before forwarding it on
// the returned channel. The returned channel is closed when in closes or ctx
// is cancelled.
func (r *Reflector) Run(ctx context.Context, in <-chan watcher.Event) <-chan watcher.Event {
	out := make(chan watcher.Event)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-in:
				if !open {
					return
				}

				r.apply(ev)

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// apply mutates the store according to spec.md §4.2's rules. A relist's
// InitApply items accumulate in r.staging (invisible to readers) until
// InitDone performs one atomic swap into the store. Delete for a ref the
// store never held is a silent no-op: the event still passes through
// unchanged to downstream consumers.
func (r *Reflector) apply(ev watcher.Event) {
	switch ev.Kind {
	case watcher.InitStart:
		r.staging = make(map[objectref.ObjectRef]transport.Object)

	case watcher.InitApply:
		ref := objectref.FromObject(r.resource, ev.Object)
		r.staging[ref] = ev.Object

	case watcher.InitDone:
		staged := r.staging
		if staged == nil {
			staged = make(map[objectref.ObjectRef]transport.Object)
		}
		r.staging = nil
		r.store.swap(staged)

	case watcher.Apply:
		ref := objectref.FromObject(r.resource, ev.Object)
		r.store.put(ref, ev.Object)

	case watcher.Delete:
		ref := objectref.FromObject(r.resource, ev.Object)
		r.store.delete(ref)
	}
}
