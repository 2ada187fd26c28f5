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
	"time"

	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/scheduler"
	"github.com/rexagod/resource-state-metrics/pkg/store"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
	"k8s.io/klog/v2"
)

// ReconcileResult is the success half of spec.md §3's Reconcile outcome: a
// `none` requeue (Requeue=false) means no periodic re-reconcile is
// scheduled; RequeueAfter schedules a follow-up through the scheduler.
type ReconcileResult struct {
	Requeue      bool
	RequeueAfter time.Duration
}

// Reconciler is user reconcile logic. obj is nil for a tombstone reconcile
// (spec.md §4.4 step 2: "may be absent").
type Reconciler func(ctx context.Context, ref objectref.ObjectRef, obj transport.Object) (ReconcileResult, error)

// ErrorPolicy turns a reconcile error into a requeue delay (spec.md §4.4
// step 5) and is told about successes so it can reset any per-ref state
// (spec.md §4.7: "the controller engine's per-ref error tracking resets on
// each successful reconcile").
type ErrorPolicy interface {
	Next(ref objectref.ObjectRef, err error) time.Duration
	Reset(ref objectref.ObjectRef)
}

// Result is one entry of the engine's outcome stream (spec.md §4.4
// "produce a stream of (ObjectRef<K>, outcome) results").
type Result struct {
	Ref        objectref.ObjectRef
	Err        error
	Requeued   bool
	RequeueFor time.Duration
}

// Engine composes a store, a scheduler, a reconciler, and an error policy
// into the bounded-concurrency dispatch loop of spec.md §4.4.
type Engine struct {
	store       store.Store
	sched       *scheduler.Scheduler
	reconcile   Reconciler
	errorPolicy ErrorPolicy
	concurrency int
	logger      klog.Logger
	gate        *runGate

	mu         sync.Mutex
	processing map[objectref.ObjectRef]bool
	dirty      map[objectref.ObjectRef]bool
}

// New returns an Engine. concurrency is the global in-flight reconcile cap
// (spec.md §4.4's `N`); it is clamped to at least 1.
func New(logger klog.Logger, s store.Store, sched *scheduler.Scheduler, reconcile Reconciler, errorPolicy ErrorPolicy, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Engine{
		store:       s,
		sched:       sched,
		reconcile:   reconcile,
		errorPolicy: errorPolicy,
		concurrency: concurrency,
		logger:      logger,
		gate:        newRunGate(),
		processing:  make(map[objectref.ObjectRef]bool),
		dirty:       make(map[objectref.ObjectRef]bool),
	}
}

// Pause stops the engine from dequeuing new work (spec.md §4.4: used when
// leadership is lost). In-flight reconciles are unaffected.
func (e *Engine) Pause() { e.gate.Pause() }

// Resume lets the engine dequeue work again.
func (e *Engine) Resume() { e.gate.Resume() }

// Run feeds triggers into the scheduler and drives concurrency workers that
// dequeue, reconcile, and requeue. The returned channel is closed once ctx
// is cancelled and every in-flight reconcile (and the feeder) has returned —
// spec.md §4.4's graceful shutdown, bounded by the deadline the caller's ctx
// itself encodes.
func (e *Engine) Run(ctx context.Context, triggers <-chan objectref.ObjectRef) <-chan Result {
	out := make(chan Result)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.feed(ctx, triggers)
	}()

	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, out)
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (e *Engine) feed(ctx context.Context, triggers <-chan objectref.ObjectRef) {
	now := time.Now
	for {
		select {
		case <-ctx.Done():
			return
		case ref, open := <-triggers:
			if !open {
				return
			}

			e.sched.Submit(ref, now())
		}
	}
}

func (e *Engine) worker(ctx context.Context, out chan<- Result) {
	for {
		if err := e.gate.Await(ctx); err != nil {
			return
		}

		ref, ok := e.sched.Next(ctx)
		if !ok {
			return
		}

		if !e.beginProcessing(ref) {
			// Already in flight for this ref: the trigger that produced this
			// dequeue is recorded as dirty and will be resubmitted by the
			// in-flight reconcile's own completion (spec.md §4.4
			// "never more than one in-flight reconcile per ObjectRef").
			continue
		}

		res := e.reconcileOnce(ctx, ref)

		resubmit := e.endProcessing(ref)
		if resubmit {
			e.sched.Submit(ref, time.Now())
		}

		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) reconcileOnce(ctx context.Context, ref objectref.ObjectRef) Result {
	obj, _ := e.store.Get(ref)

	result, err := e.reconcile(ctx, ref, obj)
	if err != nil {
		after := e.errorPolicy.Next(ref, err)
		e.sched.Submit(ref, time.Now().Add(after))
		e.logger.V(1).Info("reconcile failed, requeued", "ref", ref.String(), "after", after, "err", err)

		return Result{Ref: ref, Err: err, Requeued: true, RequeueFor: after}
	}

	e.errorPolicy.Reset(ref)

	if result.Requeue {
		e.sched.Submit(ref, time.Now().Add(result.RequeueAfter))

		return Result{Ref: ref, Requeued: true, RequeueFor: result.RequeueAfter}
	}

	return Result{Ref: ref}
}

func (e *Engine) beginProcessing(ref objectref.ObjectRef) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.processing[ref] {
		e.dirty[ref] = true

		return false
	}

	e.processing[ref] = true

	return true
}

func (e *Engine) endProcessing(ref objectref.ObjectRef) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.processing, ref)
	wasDirty := e.dirty[ref]
	delete(e.dirty, ref)

	return wasDirty
}
