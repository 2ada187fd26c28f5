package backoff

import (
	"testing"
	"time"
)

func TestNextIsNonDecreasingWithinBounds(t *testing.T) {
	t.Parallel()
	opts := Options{Min: 10 * time.Millisecond, Max: 160 * time.Millisecond, Factor: 2, Jitter: 0}
	b := New(opts)

	prev := time.Duration(0)
	for i := 0; i < 6; i++ {
		got := b.Next()
		if got < opts.Min || got > time.Duration(float64(opts.Max)*(1+opts.Jitter))+1 {
			t.Fatalf("attempt %d: delay %v out of [%v, %v]", i, got, opts.Min, opts.Max)
		}
		if got < prev {
			// Exponential without jitter should be non-decreasing until it caps at Max.
			t.Fatalf("attempt %d: delay %v should not be less than previous %v", i, got, prev)
		}
		prev = got
	}
}

func TestResetReturnsToMin(t *testing.T) {
	t.Parallel()
	opts := Options{Min: 5 * time.Millisecond, Max: time.Second, Factor: 3, Jitter: 0}
	b := New(opts)

	for i := 0; i < 4; i++ {
		b.Next()
	}
	if b.Attempt() != 4 {
		t.Fatalf("expected 4 attempts, got %d", b.Attempt())
	}

	b.Reset()
	if b.Attempt() != 0 {
		t.Fatalf("expected attempt counter reset to 0, got %d", b.Attempt())
	}

	got := b.Next()
	if got < opts.Min || got > opts.Min*2 {
		t.Fatalf("expected first delay after reset close to Min=%v, got %v", opts.Min, got)
	}
}

func TestJitterStaysWithinFactor(t *testing.T) {
	t.Parallel()
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := jitter(d, 0.2)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("jitter(%v, 0.2) = %v out of [80ms, 120ms]", d, got)
		}
	}
}
