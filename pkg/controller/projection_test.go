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
	"context"
	"testing"
	"time"

	"github.com/rexagod/resource-state-metrics/pkg/watcher"
)

func TestAppliedDropsControlAndDeleteEvents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := make(chan watcher.Event, 5)
	events <- watcher.Event{Kind: watcher.InitStart}
	events <- watcher.Event{Kind: watcher.InitApply, Object: triggerObj{name: "a"}}
	events <- watcher.Event{Kind: watcher.InitDone}
	events <- watcher.Event{Kind: watcher.Apply, Object: triggerObj{name: "b"}}
	events <- watcher.Event{Kind: watcher.Delete, Object: triggerObj{name: "c"}}
	close(events)

	var got []string
	for obj := range Applied(ctx, events) {
		got = append(got, obj.GetName())
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
}

func TestTouchedIncludesDelete(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := make(chan watcher.Event, 3)
	events <- watcher.Event{Kind: watcher.Apply, Object: triggerObj{name: "a"}}
	events <- watcher.Event{Kind: watcher.Delete, Object: triggerObj{name: "b"}}
	events <- watcher.Event{Kind: watcher.InitStart}
	close(events)

	var got []string
	for obj := range Touched(ctx, events) {
		got = append(got, obj.GetName())
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
}
