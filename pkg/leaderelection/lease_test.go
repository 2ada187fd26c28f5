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

package leaderelection

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"

	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

// fakeLeaseClient is an in-memory transport.LeaseClient with an optimistic
// concurrency token, enough to exercise the conflict/retry paths.
type fakeLeaseClient struct {
	mu       sync.Mutex
	lease    *transport.LeaseResource
	rv       int
	existing bool

	failNextUpdate bool
}

func (c *fakeLeaseClient) Get(_ context.Context) (*transport.LeaseResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.existing {
		return nil, apierrors.NewNotFound(schema.GroupResource{Group: "coordination.k8s.io", Resource: "leases"}, "test")
	}

	cp := *c.lease

	return &cp, nil
}

func (c *fakeLeaseClient) Create(_ context.Context, lease *transport.LeaseResource) (*transport.LeaseResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.existing {
		return nil, apierrors.NewAlreadyExists(schema.GroupResource{Group: "coordination.k8s.io", Resource: "leases"}, "test")
	}

	c.rv++
	lease.ResourceVersion = fmt.Sprintf("%d", c.rv)
	c.lease = lease
	c.existing = true
	cp := *c.lease

	return &cp, nil
}

func (c *fakeLeaseClient) Update(_ context.Context, lease *transport.LeaseResource) (*transport.LeaseResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNextUpdate {
		c.failNextUpdate = false

		return nil, apierrors.NewConflict(schema.GroupResource{Group: "coordination.k8s.io", Resource: "leases"}, "test", fmt.Errorf("stale resourceVersion"))
	}

	if !c.existing || lease.ResourceVersion != c.lease.ResourceVersion {
		return nil, apierrors.NewConflict(schema.GroupResource{Group: "coordination.k8s.io", Resource: "leases"}, "test", fmt.Errorf("stale resourceVersion"))
	}

	c.rv++
	lease.ResourceVersion = fmt.Sprintf("%d", c.rv)
	c.lease = lease
	cp := *c.lease

	return &cp, nil
}

var _ transport.LeaseClient = (*fakeLeaseClient)(nil)

func TestTryAcquireCreatesAbsentLease(t *testing.T) {
	t.Parallel()

	client := &fakeLeaseClient{}
	lock := New(klog.Background(), client, Options{Identity: "a", Expiration: time.Minute})

	ok, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected to acquire an absent lease")
	}
	if !lock.IsHolding() {
		t.Fatalf("expected IsHolding true after acquire")
	}
}

func TestTryAcquireRenewsOwnLease(t *testing.T) {
	t.Parallel()

	client := &fakeLeaseClient{}
	lock := New(klog.Background(), client, Options{Identity: "a", Expiration: time.Minute})

	if _, err := lock.TryAcquire(context.Background()); err != nil {
		t.Fatalf("initial acquire: %v", err)
	}

	ok, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !ok {
		t.Fatalf("expected renew to succeed")
	}
}

func TestTryAcquireReportsNotOwnerBeforeExpiration(t *testing.T) {
	t.Parallel()

	client := &fakeLeaseClient{}
	owner := New(klog.Background(), client, Options{Identity: "owner", Expiration: time.Minute})
	if _, err := owner.TryAcquire(context.Background()); err != nil {
		t.Fatalf("owner acquire: %v", err)
	}

	other := New(klog.Background(), client, Options{Identity: "other", Expiration: time.Minute})
	ok, err := other.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("other acquire: %v", err)
	}
	if ok {
		t.Fatalf("expected non-owner to fail to acquire an unexpired lease")
	}
}

func TestTryAcquireStealsExpiredLease(t *testing.T) {
	t.Parallel()

	client := &fakeLeaseClient{}
	owner := New(klog.Background(), client, Options{Identity: "owner", Expiration: time.Millisecond})
	if _, err := owner.TryAcquire(context.Background()); err != nil {
		t.Fatalf("owner acquire: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	other := New(klog.Background(), client, Options{Identity: "other", Expiration: time.Millisecond})
	ok, err := other.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("steal: %v", err)
	}
	if !ok {
		t.Fatalf("expected to steal an expired lease")
	}

	term, _ := other.Term()
	if term != 1 {
		t.Fatalf("expected lease transition count to increment to 1, got %d", term)
	}
}

func TestRenewToleratesSingleConflict(t *testing.T) {
	t.Parallel()

	client := &fakeLeaseClient{}
	lock := New(klog.Background(), client, Options{Identity: "a", Expiration: time.Minute})
	if _, err := lock.TryAcquire(context.Background()); err != nil {
		t.Fatalf("initial acquire: %v", err)
	}

	client.failNextUpdate = true

	ok, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("renew after single conflict: %v", err)
	}
	if !ok {
		t.Fatalf("expected a single conflict to be tolerated via retry-once")
	}
}

func TestTryReleaseClearsHolder(t *testing.T) {
	t.Parallel()

	client := &fakeLeaseClient{}
	lock := New(klog.Background(), client, Options{Identity: "a", Expiration: time.Minute})
	if _, err := lock.TryAcquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	released, err := lock.TryRelease(context.Background())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !released {
		t.Fatalf("expected release to report true for a held lease")
	}
	if lock.IsHolding() {
		t.Fatalf("expected IsHolding false after release")
	}
}
