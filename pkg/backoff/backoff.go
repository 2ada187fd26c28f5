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

// Package backoff implements the resettable exponential backoff used by the
// watcher's reconnect loop and the controller engine's per-ref error
// tracking (spec.md §4.7).
package backoff

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Resettable is a backoff that can be asked to start over, mirroring
// kube-runtime's ResettableBackoff trait: any component driving a retry loop
// holds one of these rather than a bare iterator so it can reset on success
// without reconstructing the whole object.
type Resettable interface {
	// Next returns the delay to wait before the next attempt, and advances
	// the internal attempt counter.
	Next() time.Duration

	// Reset returns the state to its initial min/zero-attempts condition.
	Reset()
}

// Options configures an Exponential backoff.
type Options struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64

	// Burst, when non-zero, caps the instantaneous retry rate with a token
	// bucket alongside the exponential delay, mirroring the teacher's
	// workqueue.NewTypedMaxOfRateLimiter(exponential, bucketRateLimiter)
	// composition: the caller never waits less than whichever of the two
	// limiters is currently stricter.
	Burst     int
	RatePerSec float64
}

// DefaultOptions returns a curve starting at 1s, doubling up to 1m with 10%
// jitter, plus a 50/s token bucket with a burst of 300. These values differ
// from pkg/config's backoff flag defaults (30s maximum, 0.2 jitter).
func DefaultOptions() Options {
	return Options{
		Min:        time.Second,
		Max:        time.Minute,
		Factor:     2.0,
		Jitter:     0.1,
		Burst:      300,
		RatePerSec: 50,
	}
}

// Exponential is the default Resettable implementation: a jittered
// exponential delay with an optional token-bucket ceiling.
type Exponential struct {
	opts Options

	mu      sync.Mutex
	current time.Duration
	attempt int

	limiter *rate.Limiter
}

var _ Resettable = (*Exponential)(nil)

// New returns a fresh Exponential backoff seeded at opts.Min.
func New(opts Options) *Exponential {
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst)
	}

	return &Exponential{
		opts:    opts,
		current: opts.Min,
		limiter: limiter,
	}
}

// Next returns the current delay with +/-Jitter applied, then multiplies the
// current delay by Factor (clamped to [Min, Max]) for the following call, so
// the first call after New or Reset returns about Min. A token-bucket
// ceiling, if configured,
// is folded in by taking whichever of the two delays is larger — the same
// "max of two rate limiters" composition the teacher builds with
// workqueue.NewTypedMaxOfRateLimiter.
func (e *Exponential) Next() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	delay := e.current
	e.attempt++

	next := time.Duration(float64(e.current) * e.opts.Factor)
	if next > e.opts.Max {
		next = e.opts.Max
	}
	if next < e.opts.Min {
		next = e.opts.Min
	}
	e.current = next

	delay = jitter(delay, e.opts.Jitter)

	if e.limiter != nil {
		if reserved := e.limiter.Reserve().Delay(); reserved > delay {
			delay = reserved
		}
	}

	return delay
}

// Reset returns the delay to Min and the attempt counter to zero.
func (e *Exponential) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = e.opts.Min
	e.attempt = 0
}

// Attempt reports the number of times Next has been called since
// construction or the last Reset, useful for logging/metrics.
func (e *Exponential) Attempt() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.attempt
}

func jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	delta := float64(d) * factor
	min := float64(d) - delta
	max := float64(d) + delta
	if min < 0 {
		min = 0
	}

	//nolint:gosec // jitter does not need a cryptographically secure source.
	return time.Duration(min + rand.Float64()*(max-min))
}
