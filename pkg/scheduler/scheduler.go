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

// Package scheduler implements the single-consumer, time-ordered dedup
// queue of spec.md §4.3: a min-heap keyed by run-after time plus an
// auxiliary map for O(log n) dedup, grounded in the pack's
// container/heap-based priority queues (e.g. the multi-agent pathfinding
// repo's PriorityQueue) generalized from a static A* frontier to a live,
// submit-while-waiting queue.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
)

// entry is one pending (ObjectRef, run_after) pair, plus its current index
// in the heap so Submit can fix up an existing entry in place.
type entry struct {
	ref      objectref.ObjectRef
	runAfter time.Time
	index    int
}

// entryHeap is a container/heap.Interface over entries ordered by runAfter.
type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].runAfter.Before(h[j].runAfter) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]

	return e
}

// Scheduler is the queue of spec.md §4.3. A nil zero value is not usable;
// construct with New.
type Scheduler struct {
	mu      sync.Mutex
	h       entryHeap
	byRef   map[objectref.ObjectRef]*entry
	wake    chan struct{}
	nowFunc func() time.Time
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		byRef:   make(map[objectref.ObjectRef]*entry),
		wake:    make(chan struct{}, 1),
		nowFunc: time.Now,
	}
}

// Submit inserts or updates ref's pending entry. If ref already has a
// pending entry scheduled for t_old, the new scheduled time is
// min(t_old, after) (spec.md §4.3). Waiters blocked in Next are woken so a
// sooner entry is never missed.
func (s *Scheduler) Submit(ref objectref.ObjectRef, after time.Time) {
	s.mu.Lock()

	if e, ok := s.byRef[ref]; ok {
		if after.Before(e.runAfter) {
			e.runAfter = after
			heap.Fix(&s.h, e.index)
		}
	} else {
		e := &entry{ref: ref, runAfter: after}
		heap.Push(&s.h, e)
		s.byRef[ref] = e
	}

	s.mu.Unlock()

	s.notify()
}

// Next blocks until an entry's run_after has elapsed, or ctx is cancelled.
// It always removes the entry it returns, per spec.md §4.3 ("removing it"):
// at-least-once delivery is the caller's (the controller engine's)
// responsibility to uphold across crashes, not this package's.
func (s *Scheduler) Next(ctx context.Context) (objectref.ObjectRef, bool) {
	for {
		s.mu.Lock()
		if len(s.h) == 0 {
			s.mu.Unlock()

			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return objectref.ObjectRef{}, false
			}
		}

		head := s.h[0]
		now := s.nowFunc()
		if !head.runAfter.After(now) {
			heap.Pop(&s.h)
			delete(s.byRef, head.ref)
			s.mu.Unlock()

			return head.ref, true
		}

		wait := head.runAfter.Sub(now)
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()

			return objectref.ObjectRef{}, false
		}
	}
}

// Len reports the number of pending entries, for metrics/testing.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.h)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
