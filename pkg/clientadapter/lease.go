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
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

// LeaseClient adapts a single coordination.k8s.io/v1 Lease object, identified
// by name/namespace at construction, into pkg/leaderelection's
// transport.LeaseClient boundary.
type LeaseClient struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

var _ transport.LeaseClient = (*LeaseClient)(nil)

// NewLeaseClient returns a LeaseClient bound to a single lease resource.
func NewLeaseClient(client kubernetes.Interface, namespace, name string) *LeaseClient {
	return &LeaseClient{client: client, namespace: namespace, name: name}
}

// Get implements transport.LeaseClient.
func (c *LeaseClient) Get(ctx context.Context) (*transport.LeaseResource, error) {
	lease, err := c.client.CoordinationV1().Leases(c.namespace).Get(ctx, c.name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	return fromLease(lease), nil
}

// Create implements transport.LeaseClient.
func (c *LeaseClient) Create(ctx context.Context, lease *transport.LeaseResource) (*transport.LeaseResource, error) {
	created, err := c.client.CoordinationV1().Leases(c.namespace).Create(ctx, toLease(c.namespace, c.name, lease), metav1.CreateOptions{})
	if err != nil {
		return nil, err
	}

	return fromLease(created), nil
}

// Update implements transport.LeaseClient.
func (c *LeaseClient) Update(ctx context.Context, lease *transport.LeaseResource) (*transport.LeaseResource, error) {
	updated, err := c.client.CoordinationV1().Leases(c.namespace).Update(ctx, toLease(c.namespace, c.name, lease), metav1.UpdateOptions{})
	if err != nil {
		return nil, err
	}

	return fromLease(updated), nil
}

func toLease(namespace, name string, l *transport.LeaseResource) *coordinationv1.Lease {
	holder := l.HolderIdentity
	duration := l.LeaseDurationSeconds
	acquire := metav1.NewTime(time.Unix(l.AcquireTime, 0))
	renew := metav1.NewTime(time.Unix(l.RenewTime, 0))
	transitions := l.LeaseTransitions

	return &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       namespace,
			ResourceVersion: l.ResourceVersion,
		},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &holder,
			LeaseDurationSeconds: &duration,
			AcquireTime:          &acquire,
			RenewTime:            &renew,
			LeaseTransitions:     &transitions,
		},
	}
}

func fromLease(lease *coordinationv1.Lease) *transport.LeaseResource {
	out := &transport.LeaseResource{
		Name:            lease.Name,
		Namespace:       lease.Namespace,
		ResourceVersion: lease.ResourceVersion,
	}

	if lease.Spec.HolderIdentity != nil {
		out.HolderIdentity = *lease.Spec.HolderIdentity
	}
	if lease.Spec.LeaseDurationSeconds != nil {
		out.LeaseDurationSeconds = *lease.Spec.LeaseDurationSeconds
	}
	if lease.Spec.AcquireTime != nil {
		out.AcquireTime = lease.Spec.AcquireTime.Unix()
	}
	if lease.Spec.RenewTime != nil {
		out.RenewTime = lease.Spec.RenewTime.Unix()
	}
	if lease.Spec.LeaseTransitions != nil {
		out.LeaseTransitions = *lease.Spec.LeaseTransitions
	}

	return out
}
