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

// Package controller implements the engine of spec.md §4.4: trigger
// composition, bounded-concurrency dispatch, error-policy-driven requeue,
// and pause-on-leader-loss. Grounded on the teacher's internal/controller.go
// dispatch loop (built around a workqueue.TypedRateLimitingInterface) and
// kube-runtime's controller.rs trigger-stream composition described in
// original_source.
package controller

import (
	"context"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
	"github.com/rexagod/resource-state-metrics/pkg/watcher"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// eventRef extracts the ObjectRef an event is "about", for events that
// carry a live or recently-live object. InitStart/InitDone carry no object
// and return ok=false.
func eventRef(resource string, ev watcher.Event) (objectref.ObjectRef, bool) {
	switch ev.Kind {
	case watcher.InitApply, watcher.Apply, watcher.Delete:
		return objectref.FromObject(resource, ev.Object), true
	default:
		return objectref.ObjectRef{}, false
	}
}

// SelfTrigger produces one trigger per event on the primary watched kind's
// own stream (spec.md §4.4 "Self trigger"), including the initial relist so
// existing objects are reconciled once on startup.
func SelfTrigger(ctx context.Context, resource string, events <-chan watcher.Event) <-chan objectref.ObjectRef {
	out := make(chan objectref.ObjectRef)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}

				ref, ok := eventRef(resource, ev)
				if !ok {
					continue
				}

				select {
				case out <- ref:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// OwnerTrigger walks each auxiliary object's owner references and produces
// a trigger for the owning object's ref whenever an owner's kind matches
// ownerKind (spec.md §4.4 "Owner trigger"). ownerResource is the primary
// kind's plural, used to build the resulting ObjectRef.
func OwnerTrigger(ctx context.Context, auxResource string, ownerKind schema.GroupVersionKind, ownerResource string, events <-chan watcher.Event) <-chan objectref.ObjectRef {
	out := make(chan objectref.ObjectRef)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}

				if ev.Object == nil {
					continue
				}

				namespace := ev.Object.GetNamespace()
				for _, owner := range ev.Object.GetOwnerReferences() {
					if owner.Kind != ownerKind.Kind || owner.Group != ownerKind.Group {
						continue
					}

					ref := objectref.New(ownerKind, ownerResource, namespace, owner.Name)
					select {
					case out <- ref:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}

// RelationMapper derives zero or more triggers from an object on an
// auxiliary stream — e.g. a label-selector reverse index — per spec.md
// §4.4 "Relation trigger".
type RelationMapper func(obj transport.Object) []objectref.ObjectRef

// RelationTrigger applies mapper to every object-carrying event on events.
func RelationTrigger(ctx context.Context, mapper RelationMapper, events <-chan watcher.Event) <-chan objectref.ObjectRef {
	out := make(chan objectref.ObjectRef)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}

				if ev.Object == nil {
					continue
				}

				for _, ref := range mapper(ev.Object) {
					select {
					case out <- ref:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}

// Merge fan-ins any number of trigger streams into one, per spec.md §4.4
// ("All trigger streams are merged"). The returned channel closes once every
// input has closed or ctx is cancelled.
func Merge(ctx context.Context, streams ...<-chan objectref.ObjectRef) <-chan objectref.ObjectRef {
	out := make(chan objectref.ObjectRef)
	remaining := len(streams)
	if remaining == 0 {
		close(out)

		return out
	}

	done := make(chan struct{}, remaining)
	for _, s := range streams {
		s := s
		go func() {
			defer func() { done <- struct{}{} }()

			for {
				select {
				case <-ctx.Done():
					return
				case ref, open := <-s:
					if !open {
						return
					}

					select {
					case out <- ref:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		defer close(out)
		for i := 0; i < remaining; i++ {
			<-done
		}
	}()

	return out
}
