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

package clientadapter

import (
	"context"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	kubefake "k8s.io/client-go/kubernetes/fake"

	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

func TestLeaseClientGetNotFound(t *testing.T) {
	t.Parallel()

	client := NewLeaseClient(kubefake.NewClientset(), "kube-system", "my-controller")

	_, err := client.Get(context.Background())
	if !apierrors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestLeaseClientCreateThenGetRoundTrips(t *testing.T) {
	t.Parallel()

	client := NewLeaseClient(kubefake.NewClientset(), "kube-system", "my-controller")

	created, err := client.Create(context.Background(), &transport.LeaseResource{
		HolderIdentity:       "pod-a",
		LeaseDurationSeconds: 15,
		AcquireTime:          1000,
		RenewTime:            1000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.HolderIdentity != "pod-a" {
		t.Fatalf("expected holder pod-a, got %s", created.HolderIdentity)
	}

	got, err := client.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HolderIdentity != "pod-a" || got.LeaseDurationSeconds != 15 {
		t.Fatalf("unexpected lease after round-trip: %+v", got)
	}
}

func TestLeaseClientUpdateChangesHolder(t *testing.T) {
	t.Parallel()

	client := NewLeaseClient(kubefake.NewClientset(), "kube-system", "my-controller")

	created, err := client.Create(context.Background(), &transport.LeaseResource{HolderIdentity: "pod-a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := client.Update(context.Background(), &transport.LeaseResource{
		ResourceVersion: created.ResourceVersion,
		HolderIdentity:  "pod-b",
		LeaseTransitions: 1,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.HolderIdentity != "pod-b" || updated.LeaseTransitions != 1 {
		t.Fatalf("unexpected lease after update: %+v", updated)
	}
}
