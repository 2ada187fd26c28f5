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

// Package clientadapter adapts a real k8s.io/client-go dynamic.Interface
// into the narrow transport.ListWatcher boundary pkg/watcher consumes, the
// one piece of this module that is allowed to know about an actual
// Kubernetes REST client. Grounded on the teacher's internal/builder.go
// buildLW, which wires the identical dynamicClientset.Resource(gvr) calls
// into a cache.ListWatch; this package performs the same wiring against
// transport.Lister/Watcher instead.
package clientadapter

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

// DynamicListWatcher implements transport.ListWatcher against a single
// GroupVersionResource, optionally scoped to a namespace.
type DynamicListWatcher struct {
	client    dynamic.Interface
	gvr       schema.GroupVersionResource
	namespace string
}

var _ transport.ListWatcher = (*DynamicListWatcher)(nil)

// New returns a DynamicListWatcher. namespace is "" for cluster-scoped
// resources or to watch across all namespaces.
func New(client dynamic.Interface, gvr schema.GroupVersionResource, namespace string) *DynamicListWatcher {
	return &DynamicListWatcher{client: client, gvr: gvr, namespace: namespace}
}

func (w *DynamicListWatcher) resource() dynamic.ResourceInterface {
	if w.namespace == "" {
		return w.client.Resource(w.gvr)
	}

	return w.client.Resource(w.gvr).Namespace(w.namespace)
}

// List implements transport.Lister.
func (w *DynamicListWatcher) List(ctx context.Context, opts transport.ListOptions) (*transport.ListResult, error) {
	list, err := w.resource().List(ctx, metav1.ListOptions{
		LabelSelector: opts.LabelSelector,
		FieldSelector: opts.FieldSelector,
		Limit:         opts.Limit,
		Continue:      opts.Continue,
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", w.gvr.String(), err)
	}

	items := make([]transport.Object, 0, len(list.Items))
	for i := range list.Items {
		items = append(items, unstructuredObject{&list.Items[i]})
	}

	return &transport.ListResult{
		Items:           items,
		ResourceVersion: list.GetResourceVersion(),
		Continue:        list.GetContinue(),
	}, nil
}

// Watch implements transport.Watcher.
func (w *DynamicListWatcher) Watch(ctx context.Context, opts transport.WatchOptions) (transport.RawEventStream, error) {
	timeout := opts.TimeoutSeconds
	watchIface, err := w.resource().Watch(ctx, metav1.ListOptions{
		ResourceVersion:     opts.ResourceVersion,
		AllowWatchBookmarks: opts.AllowBookmarks,
		TimeoutSeconds:      &timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", w.gvr.String(), err)
	}

	return newWatchStream(watchIface), nil
}

// watchStream adapts a watch.Interface into transport.RawEventStream,
// translating apimachinery's watch.Event into the wire-neutral
// transport.RawEvent the watcher package consumes.
type watchStream struct {
	src    watch.Interface
	events chan transport.RawEvent
	done   chan struct{}
}

func newWatchStream(src watch.Interface) *watchStream {
	s := &watchStream{src: src, events: make(chan transport.RawEvent), done: make(chan struct{})}
	go s.pump()

	return s
}

func (s *watchStream) pump() {
	defer close(s.events)

	for {
		select {
		case ev, open := <-s.src.ResultChan():
			if !open {
				return
			}

			raw, ok := translateWatchEvent(ev)
			if !ok {
				continue
			}

			select {
			case s.events <- raw:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func translateWatchEvent(ev watch.Event) (transport.RawEvent, bool) {
	switch ev.Type {
	case watch.Added, watch.Modified, watch.Deleted:
		u, ok := ev.Object.(*unstructured.Unstructured)
		if !ok {
			return transport.RawEvent{}, false
		}

		return transport.RawEvent{Type: rawTypeFor(ev.Type), Object: unstructuredObject{u}}, true
	case watch.Bookmark:
		u, ok := ev.Object.(*unstructured.Unstructured)
		if !ok {
			return transport.RawEvent{}, false
		}

		return transport.RawEvent{Type: transport.RawEventBookmark, BookmarkRV: u.GetResourceVersion()}, true
	case watch.Error:
		return transport.RawEvent{Type: transport.RawEventError, Status: statusFromObject(ev.Object)}, true
	default:
		return transport.RawEvent{}, false
	}
}

func rawTypeFor(t watch.EventType) transport.RawEventType {
	switch t {
	case watch.Added:
		return transport.RawEventAdded
	case watch.Modified:
		return transport.RawEventModified
	case watch.Deleted:
		return transport.RawEventDeleted
	default:
		return ""
	}
}

// statusFromObject extracts the server's failure reason from a watch.Error
// event, whose payload is conventionally a *metav1.Status.
func statusFromObject(obj runtime.Object) *transport.StatusError {
	status, ok := obj.(*metav1.Status)
	if !ok {
		return &transport.StatusError{Message: fmt.Sprintf("unrecognized watch error payload: %v", obj)}
	}

	return &transport.StatusError{
		Code:    status.Code,
		Reason:  string(status.Reason),
		Message: status.Message,
	}
}

func (s *watchStream) Events() <-chan transport.RawEvent { return s.events }

func (s *watchStream) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.src.Stop()
}

// unstructuredObject adapts *unstructured.Unstructured to objectref.Object.
type unstructuredObject struct {
	*unstructured.Unstructured
}

var _ objectref.Object = unstructuredObject{}

func (o unstructuredObject) GetOwnerReferences() []objectref.OwnerReference {
	refs := o.Unstructured.GetOwnerReferences()
	out := make([]objectref.OwnerReference, 0, len(refs))
	for _, r := range refs {
		out = append(out, objectref.OwnerReference{
			Group: schemaGroup(r.APIVersion),
			Kind:  r.Kind,
			Name:  r.Name,
			UID:   string(r.UID),
		})
	}

	return out
}

func (o unstructuredObject) GroupVersionKind() schema.GroupVersionKind {
	return o.Unstructured.GroupVersionKind()
}

func schemaGroup(apiVersion string) string {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return ""
	}

	return gv.Group
}
