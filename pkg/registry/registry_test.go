package registry

import "testing"

func TestSnapshotIsOwnedCopy(t *testing.T) {
	r := New()
	r.Observe(Node{
		NodeID:       "node1",
		Host:         "127.0.0.1:41412",
		Running:      true,
		Capabilities: map[string]struct{}{"xr": {}, "xr::BLOCK": {}},
	})

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 node, got %d", len(snap))
	}

	// Mutating the returned node's capability set must not affect the registry.
	snap[0].Capabilities["xr::INJECTED"] = struct{}{}

	again := r.Snapshot()
	if again[0].HasCapability("xr::INJECTED") {
		t.Fatalf("snapshot mutation leaked into registry")
	}
}

func TestWithCapabilityFiltersRunningAndCapability(t *testing.T) {
	r := New()
	r.Observe(Node{NodeID: "a", Running: true, Capabilities: map[string]struct{}{"xr": {}, "xr::BLOCK": {}}})
	r.Observe(Node{NodeID: "b", Running: false, Capabilities: map[string]struct{}{"xr": {}, "xr::BLOCK": {}}})
	r.Observe(Node{NodeID: "c", Running: true, Capabilities: map[string]struct{}{"xr": {}}})

	got := r.WithCapability("xr::BLOCK")
	if len(got) != 1 || got[0].NodeID != "a" {
		t.Fatalf("expected only node a, got %+v", got)
	}
}

func TestRevokeRemovesNode(t *testing.T) {
	r := New()
	r.Observe(Node{NodeID: "a", Running: true})
	gen := r.Generation()
	r.Revoke("a")
	if _, ok := r.Get("a"); ok {
		t.Fatalf("expected node a to be revoked")
	}
	if r.Generation() <= gen {
		t.Fatalf("expected generation to advance after revoke")
	}
}
