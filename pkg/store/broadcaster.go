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

	"github.com/rexagod/resource-state-metrics/pkg/watcher"
)

// Broadcaster implements the optional subscriber fan-out of spec.md §4.2: a
// copy of every event the Reflector passes through is forwarded to each
// current subscriber. It is the Go analogue of kube-runtime's
// MultiDispatcher/Prism pair, traded for the channel-native idiom: instead
// of an async broadcast channel with a fixed ring buffer, each subscriber
// gets its own buffered channel, and a subscriber that falls behind is
// disconnected rather than allowed to stall the reflector (spec.md §4.2:
// "backpressure via disconnection, not via blocking the reflector").
type Broadcaster struct {
	bufSize int

	mu   sync.Mutex
	subs map[int]chan watcher.Event
	next int
}

// NewBroadcaster returns a Broadcaster whose per-subscriber channels hold up
// to bufSize pending events before that subscriber is dropped.
func NewBroadcaster(bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 1
	}

	return &Broadcaster{
		bufSize: bufSize,
		subs:    make(map[int]chan watcher.Event),
	}
}

// Subscription is a live fan-out handle. Events is closed when the
// subscriber is dropped (buffer overrun) or Unsubscribe is called.
type Subscription struct {
	id     int
	events chan watcher.Event
	b      *Broadcaster
}

// Events returns the channel this subscription receives copies of every
// broadcast event on.
func (s *Subscription) Events() <-chan watcher.Event { return s.events }

// Unsubscribe removes this subscription from the broadcaster and closes its
// channel. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.b.remove(s.id)
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan watcher.Event, b.bufSize)
	b.subs[id] = ch

	return &Subscription{id: id, events: ch, b: b}
}

func (b *Broadcaster) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Broadcast forwards ev to every current subscriber. A subscriber whose
// buffer is full is dropped rather than blocking this call, matching
// spec.md §4.2's stated tradeoff. InitDone is not special-cased here (unlike
// kube-runtime's pre-initialized broadcast stores) since this module's
// subscribers consume the raw event stream, including init windows, rather
// than a store handle seeded at subscribe time.
func (b *Broadcaster) Broadcast(ev watcher.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Run wires a Broadcaster in front of a Reflector's (or Watcher's) event
// stream, returning a pass-through channel identical to in so callers can
// chain it like any other stage while subscribers observe copies.
func (b *Broadcaster) Run(ctx context.Context, in <-chan watcher.Event) <-chan watcher.Event {
	out := make(chan watcher.Event)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-in:
				if !open {
					return
				}

				b.Broadcast(ev)

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
