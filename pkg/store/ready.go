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
	"sync"
)

// readyGate is the Go analogue of kube-runtime's ReadyToken: a one-shot
// broadcast a reader can wait on. A closed channel is the idiomatic
// equivalent of a CancellationToken that only ever fires once — every
// waiter observes the close, and closing twice would panic, so makeReady
// guards itself with sync.Once.
type readyGate struct {
	once sync.Once
	ch   chan struct{}
}

func newReadyGate() *readyGate {
	return &readyGate{ch: make(chan struct{})}
}

func (g *readyGate) makeReady() {
	g.once.Do(func() { close(g.ch) })
}

func (g *readyGate) isReady() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

func (g *readyGate) wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
