package objectref

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

type fakeObject struct {
	name, namespace, rv string
	generation          int64
	labels, annotations map[string]string
	owners              []OwnerReference
	gvk                 schema.GroupVersionKind
}

func (f fakeObject) GetName() string                         { return f.name }
func (f fakeObject) GetNamespace() string                    { return f.namespace }
func (f fakeObject) GetResourceVersion() string               { return f.rv }
func (f fakeObject) GetGeneration() int64                     { return f.generation }
func (f fakeObject) GetLabels() map[string]string             { return f.labels }
func (f fakeObject) GetAnnotations() map[string]string        { return f.annotations }
func (f fakeObject) GetOwnerReferences() []OwnerReference      { return f.owners }
func (f fakeObject) GroupVersionKind() schema.GroupVersionKind { return f.gvk }

func TestFromObjectRoundTrip(t *testing.T) {
	t.Parallel()
	gvk := schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}
	obj := fakeObject{name: "web", namespace: "default", gvk: gvk}

	ref := FromObject("deployments", obj)
	want := New(gvk, "deployments", "default", "web")

	if diff := cmp.Diff(want, ref); diff != "" {
		t.Fatalf("ref mismatch (-want +got):\n%s", diff)
	}
	if ref != want {
		t.Fatalf("ObjectRef must be comparable with ==: %+v != %+v", ref, want)
	}

	// Used as a map key, hashing must round-trip identically.
	m := map[ObjectRef]int{ref: 1}
	if m[want] != 1 {
		t.Fatalf("expected ObjectRef to be usable as a map key across equal values")
	}
}

func TestClusterScopedKeyHasNoSlash(t *testing.T) {
	t.Parallel()
	ref := New(schema.GroupVersionKind{Version: "v1", Kind: "Node"}, "nodes", "", "node-1")
	if ref.Key() != "node-1" {
		t.Fatalf("expected cluster-scoped key %q, got %q", "node-1", ref.Key())
	}
}

func TestNamespacedKey(t *testing.T) {
	t.Parallel()
	ref := New(schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}, "deployments", "default", "web")
	if ref.Key() != "default/web" {
		t.Fatalf("expected namespaced key %q, got %q", "default/web", ref.Key())
	}
}

func TestWithNamePreservesScope(t *testing.T) {
	t.Parallel()
	owner := New(schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}, "deployments", "ns", "aux")
	owned := owner.WithName("parent")
	if owned.Namespace != "ns" || owned.Name != "parent" {
		t.Fatalf("WithName should only change Name: %+v", owned)
	}
}
