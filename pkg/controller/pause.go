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
	"sync"
)

// runGate lets the engine implement "pauses (drains and stops dequeuing)
// when leadership is lost and resumes on acquisition; in-flight reconciles
// run to completion" (spec.md §4.4) without tearing down worker goroutines.
// It starts open (running without a lease integration is the common case).
type runGate struct {
	mu  sync.Mutex
	run chan struct{}
}

func newRunGate() *runGate {
	g := &runGate{run: make(chan struct{})}
	close(g.run) // open: running by default

	return g
}

// Pause blocks future Await calls until Resume is called. In-flight work
// already past its Await call is unaffected — this only gates the next
// dequeue, matching the engine's let-finish semantics.
func (g *runGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.run:
		g.run = make(chan struct{})
	default:
		// Already paused.
	}
}

// Resume unblocks any Await calls waiting on this gate.
func (g *runGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.run:
		// Already running.
	default:
		close(g.run)
	}
}

// Await blocks until the gate is open or ctx is cancelled.
func (g *runGate) Await(ctx context.Context) error {
	g.mu.Lock()
	ch := g.run
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
