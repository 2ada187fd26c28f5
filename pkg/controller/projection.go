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

	"github.com/rexagod/resource-state-metrics/pkg/transport"
	"github.com/rexagod/resource-state-metrics/pkg/watcher"
)

// Applied filters a watcher event stream down to events carrying a live
// object — InitApply and Apply — dropping Delete/InitStart/InitDone
// (spec.md §4.6 "Applied projection").
func Applied(ctx context.Context, events <-chan watcher.Event) <-chan transport.Object {
	return project(ctx, events, func(ev watcher.Event) (transport.Object, bool) {
		switch ev.Kind {
		case watcher.InitApply, watcher.Apply:
			return ev.Object, true
		default:
			return nil, false
		}
	})
}

// Touched is Applied plus Delete, so tombstones are included (spec.md §4.6
// "Touched projection").
func Touched(ctx context.Context, events <-chan watcher.Event) <-chan transport.Object {
	return project(ctx, events, func(ev watcher.Event) (transport.Object, bool) {
		switch ev.Kind {
		case watcher.InitApply, watcher.Apply, watcher.Delete:
			return ev.Object, true
		default:
			return nil, false
		}
	})
}

func project(ctx context.Context, events <-chan watcher.Event, f func(watcher.Event) (transport.Object, bool)) <-chan transport.Object {
	out := make(chan transport.Object)

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

				obj, ok := f(ev)
				if !ok {
					continue
				}

				select {
				case out <- obj:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
