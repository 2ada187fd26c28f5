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

// Package watcher implements the stateful relist->watch->rewatch pipeline
// described in spec.md §4.1: a resilient, infinite, resumable stream of
// normalized watch events, grounded on the teacher's use of
// cache.NewReflectorWithOptions over a cache.ListWatch (internal/builder.go).
package watcher

import (
	"context"
	"time"

	"github.com/rexagod/resource-state-metrics/pkg/backoff"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
	"k8s.io/klog/v2"
)

// Options configures a Watcher, mirroring spec.md §6's recognized
// configuration surface.
type Options struct {
	LabelSelector  string
	FieldSelector  string
	TimeoutSeconds int64
	PageSize       int64
	StreamingLists bool
	Backoff        backoff.Options
}

// DefaultOptions matches spec.md §6's stated defaults.
func DefaultOptions() Options {
	return Options{
		TimeoutSeconds: 290,
		PageSize:       0, // 0 leaves the page size to the server
		Backoff:        backoff.DefaultOptions(),
	}
}

// Watcher drives the state machine of spec.md §4.1 against a ListWatcher.
type Watcher struct {
	lw      transport.ListWatcher
	opts    Options
	backoff backoff.Resettable
}

// New returns a Watcher bound to a single kind/scope via lw. Construction
// never fails; fatal configuration errors (malformed selectors) are the
// caller's responsibility to surface before calling New, per spec.md §7.
func New(lw transport.ListWatcher, opts Options) *Watcher {
	return &Watcher{
		lw:      lw,
		opts:    opts,
		backoff: backoff.New(opts.Backoff),
	}
}

// Run starts the relist/watch/rewatch loop and returns the normalized event
// stream. The channel is closed when ctx is cancelled; no buffered Init*
// event is ever dropped into a partially-applied state because the state
// machine only ever emits a staged sequence that a subscribed reflector
// builds into an atomic swap (pkg/store.Reflector owns that half).
func (w *Watcher) Run(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go w.loop(ctx, out)

	return out
}

func (w *Watcher) loop(ctx context.Context, out chan<- Event) {
	defer close(out)

	logger := klog.FromContext(ctx)
	rv := ""
	for ctx.Err() == nil {
		var ok bool
		rv, ok = w.relist(ctx, out, logger)
		if !ok {
			return
		}

		rv = w.watchUntilRelistNeeded(ctx, out, rv, logger)
		if ctx.Err() != nil {
			return
		}
	}
}

// relist performs a limit-paginated list, emitting InitStart, one InitApply
// per item across however many pages the server requires, and InitDone once
// the final page is consumed. It retries indefinitely (with backoff) on
// transport failures, since a relist failure is never reported to the
// consumer (spec.md §4.1 "Fails only for unrecoverable errors").
func (w *Watcher) relist(ctx context.Context, out chan<- Event, logger klog.Logger) (rv string, ok bool) {
	for ctx.Err() == nil {
		if !send(ctx, out, Event{Kind: InitStart}) {
			return "", false
		}

		rv, err := w.relistOnce(ctx, out)
		if err == nil {
			w.backoff.Reset()

			return rv, true
		}

		logger.V(1).Info("relist failed, retrying after backoff", "err", err)
		if !sleep(ctx, w.backoff.Next()) {
			return "", false
		}
	}

	return "", false
}

// relistOnce issues list pages until the server stops returning a continue
// token, emitting InitApply for each item and InitDone at the end.
func (w *Watcher) relistOnce(ctx context.Context, out chan<- Event) (string, error) {
	var cont string
	var rv string
	for {
		res, err := w.lw.List(ctx, transport.ListOptions{
			LabelSelector: w.opts.LabelSelector,
			FieldSelector: w.opts.FieldSelector,
			Limit:         w.opts.PageSize,
			Continue:      cont,
		})
		if err != nil {
			return "", &Error{Kind: ErrorConnect, Cause: err}
		}

		for _, item := range res.Items {
			select {
			case out <- Event{Kind: InitApply, Object: item}:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		rv = res.ResourceVersion
		if res.Continue == "" {
			break
		}
		cont = res.Continue
	}

	select {
	case out <- Event{Kind: InitDone}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return rv, nil
}

// watchUntilRelistNeeded opens a watch from rv and keeps re-opening it across
// natural stream ends (server-side timeouts) until a desync (410 Gone), any
// other error event, or a failed watch open (each after at most one backoff
// sleep) forces a return to the caller, which then
// performs a fresh relist. It returns the last resource version observed.
func (w *Watcher) watchUntilRelistNeeded(ctx context.Context, out chan<- Event, rv string, logger klog.Logger) string {
	for ctx.Err() == nil {
		stream, err := w.lw.Watch(ctx, transport.WatchOptions{
			ResourceVersion: rv,
			AllowBookmarks:  true,
			TimeoutSeconds:  w.opts.TimeoutSeconds,
		})
		if err != nil {
			logger.V(1).Info("watch open failed, relisting after backoff", "err", err)
			if !sleep(ctx, w.backoff.Next()) {
				return rv
			}

			return rv
		}

		next, needsRelist := w.drain(ctx, out, stream, rv, logger)
		rv = next
		if needsRelist {
			return rv
		}
		// Natural stream end (server timeout): reopen immediately, no backoff.
	}

	return rv
}

// drain reads RawEvents off stream, translating and forwarding each one,
// until the stream ends or a desync/persistent error is observed. The
// boolean return reports whether the caller must fall back to a full relist.
func (w *Watcher) drain(ctx context.Context, out chan<- Event, stream transport.RawEventStream, rv string, logger klog.Logger) (string, bool) {
	defer stream.Stop()

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return rv, false
		case raw, open := <-events:
			if !open {
				// Server-side watch timeout: not an error, just re-dial.
				return rv, false
			}

			next, relistNeeded, fatal := w.translate(ctx, raw, out, logger)
			if next != "" {
				rv = next
			}
			if fatal {
				return rv, false // ctx cancelled mid-send
			}
			if relistNeeded {
				return rv, true
			}
		}
	}
}

// translate converts one RawEvent into zero or one normalized Event. It
// returns the updated resource version (if any), whether the caller must
// relist, and whether sending was aborted by context cancellation.
func (w *Watcher) translate(ctx context.Context, raw transport.RawEvent, out chan<- Event, logger klog.Logger) (rv string, relistNeeded bool, aborted bool) {
	switch raw.Type {
	case transport.RawEventAdded, transport.RawEventModified:
		if !send(ctx, out, Event{Kind: Apply, Object: raw.Object}) {
			return "", false, true
		}

		return raw.Object.GetResourceVersion(), false, false

	case transport.RawEventDeleted:
		if !send(ctx, out, Event{Kind: Delete, Object: raw.Object}) {
			return "", false, true
		}

		return raw.Object.GetResourceVersion(), false, false

	case transport.RawEventBookmark:
		return raw.BookmarkRV, false, false

	case transport.RawEventError:
		return w.translateError(ctx, raw, logger)

	default:
		logger.V(1).Info("ignoring unrecognized raw event type", "type", raw.Type)

		return "", false, false
	}
}

func (w *Watcher) translateError(ctx context.Context, raw transport.RawEvent, logger klog.Logger) (rv string, relistNeeded bool, aborted bool) {
	status := raw.Status
	if status == nil {
		status = &StatusError{}
	}

	if status.Code == 410 || status.Reason == "Gone" {
		// Desync is not an error to the consumer: discard rv, relist.
		w.backoff.Reset()

		return "", true, false
	}

	werr := &Error{Kind: ErrorServer, Code: status.Code, Reason: status.Reason, Message: status.Message}
	logger.V(1).Info("watch reported a server error, relisting after backoff", "err", werr)
	sleep(ctx, w.backoff.Next())

	return "", true, false
}

// StatusError is re-exported for readability at call sites inside this
// package; it is identical to transport.StatusError.
type StatusError = transport.StatusError

// send forwards ev, reporting false if ctx is cancelled before it is
// accepted downstream.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits for d or ctx cancellation, returning false if ctx was
// cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
