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

import (
	"context"
	"testing"
	"time"

	"github.com/rexagod/resource-state-metrics/pkg/backoff"
	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// fakeStream is a scripted transport.RawEventStream: it emits a fixed slice
// of RawEvents and then closes, simulating either a natural server timeout
// or an explicit ERROR event.
type fakeStream struct {
	events chan transport.RawEvent
	stop   chan struct{}
}

func newFakeStream(evs []transport.RawEvent) *fakeStream {
	s := &fakeStream{
		events: make(chan transport.RawEvent, len(evs)),
		stop:   make(chan struct{}, 1),
	}
	for _, e := range evs {
		s.events <- e
	}
	close(s.events)

	return s
}

func (s *fakeStream) Events() <-chan transport.RawEvent { return s.events }
func (s *fakeStream) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

// scriptedListWatcher drives the "Watcher relist" scenario from spec.md §8:
// every List returns {a, b}; the first Watch emits Added(c) followed by a
// 410 Gone error, forcing a second relist; later Watches return a stream
// that closes at once.
type scriptedListWatcher struct {
	listCalls  int
	watchCalls int
}

func (lw *scriptedListWatcher) List(_ context.Context, _ transport.ListOptions) (*transport.ListResult, error) {
	lw.listCalls++

	return &transport.ListResult{
		Items: []transport.Object{
			fakeObjectOf("a", "rv1"),
			fakeObjectOf("b", "rv2"),
		},
		ResourceVersion: "rv2",
	}, nil
}

func (lw *scriptedListWatcher) Watch(_ context.Context, opts transport.WatchOptions) (transport.RawEventStream, error) {
	lw.watchCalls++

	switch lw.watchCalls {
	case 1:
		return newFakeStream([]transport.RawEvent{
			{Type: transport.RawEventAdded, Object: fakeObjectOf("c", "rv3")},
			{Type: transport.RawEventError, Status: &transport.StatusError{Code: 410, Reason: "Gone"}},
		}), nil
	default:
		// Later watches: an empty stream that closes immediately, which the
		// watcher treats as a natural end and re-dials until ctx is cancelled.
		return newFakeStream(nil), nil
	}
}

func fakeObjectOf(name, rv string) simpleObject {
	return simpleObject{name: name, rv: rv}
}

// simpleObject is the minimal transport.Object used by these tests.
type simpleObject struct {
	name, rv string
}

func (o simpleObject) GetName() string                             { return o.name }
func (o simpleObject) GetNamespace() string                        { return "" }
func (o simpleObject) GetResourceVersion() string                  { return o.rv }
func (o simpleObject) GetGeneration() int64                        { return 1 }
func (o simpleObject) GetLabels() map[string]string                { return nil }
func (o simpleObject) GetAnnotations() map[string]string           { return nil }
func (o simpleObject) GetOwnerReferences() []objectref.OwnerReference {
	return nil
}
func (o simpleObject) GroupVersionKind() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: "test", Version: "v1", Kind: "Thing"}
}

func TestWatcherRelistScenario(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lw := &scriptedListWatcher{}
	opts := DefaultOptions()
	opts.Backoff = backoff.Options{Min: time.Millisecond, Max: 10 * time.Millisecond, Factor: 2}
	w := New(lw, opts)

	events := w.Run(ctx)

	want := []Kind{InitStart, InitApply, InitApply, InitDone, Apply, InitStart}
	var got []Kind
	for i := 0; i < len(want); i++ {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed early after %d events, want %d", len(got), len(want))
			}
			got = append(got, ev.Kind)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event %d, got so far: %v", i, got)
		}
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}

// TestInitWindowInvariant checks spec.md §8 invariant 1: every InitStart is
// matched by a later InitDone with only InitApply events between them.
func TestInitWindowInvariant(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lw := &scriptedListWatcher{}
	opts := DefaultOptions()
	opts.Backoff = backoff.Options{Min: time.Millisecond, Max: 10 * time.Millisecond, Factor: 2}
	w := New(lw, opts)

	events := w.Run(ctx)

	inInit := false
	for i := 0; i < 6; i++ {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case InitStart:
				if inInit {
					t.Fatalf("nested InitStart without an intervening InitDone")
				}
				inInit = true
			case InitDone:
				if !inInit {
					t.Fatalf("InitDone without a preceding InitStart")
				}
				inInit = false
			case InitApply:
				if !inInit {
					t.Fatalf("InitApply outside an init window")
				}
			case Apply, Delete:
				if inInit {
					t.Fatalf("%s event inside an init window", ev.Kind)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
