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

package controllertest

import (
	"context"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/rexagod/resource-state-metrics/pkg/backoff"
	"github.com/rexagod/resource-state-metrics/pkg/controller"
	"github.com/rexagod/resource-state-metrics/pkg/objectref"
	"github.com/rexagod/resource-state-metrics/pkg/transport"
)

var widgetGVK = schema.GroupVersionKind{Group: "example.com", Version: "v1", Kind: "Widget"}
var widgetGVR = schema.GroupVersionResource{Group: "example.com", Version: "v1", Resource: "widgets"}

func newWidget(name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("example.com/v1")
	u.SetKind("Widget")
	u.SetNamespace("default")
	u.SetName(name)

	return u
}

func TestHarnessReconcilesExistingAndCreatedObjects(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := New(widgetGVK, widgetGVR, "widgets", "default", newWidget("pre-existing"))

	seen := make(chan string, 10)
	reconcile := func(_ context.Context, ref objectref.ObjectRef, _ transport.Object) (controller.ReconcileResult, error) {
		seen <- ref.Name
		return controller.ReconcileResult{}, nil
	}

	results := h.RunEngine(ctx, "widgets", reconcile, controller.NewDefaultErrorPolicy(backoff.DefaultOptions()), 1)

	if _, err := h.Apply(ctx, newWidget("created-after-start")); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	gotNames := map[string]bool{}
	for len(gotNames) < 2 {
		select {
		case name := <-seen:
			gotNames[name] = true
		case <-ctx.Done():
			t.Fatalf("timed out waiting for reconciles, got %v", gotNames)
		}
	}
	if !gotNames["pre-existing"] || !gotNames["created-after-start"] {
		t.Fatalf("expected both objects reconciled, got %v", gotNames)
	}

	cancel()
	for range results {
	}
}
