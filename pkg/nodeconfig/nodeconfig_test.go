package nodeconfig

import (
	"testing"
	"time"

	"github.com/yourusername/xrouter/pkg/registry"
)

func TestFeeForFallsBackToScheduleThenDefault(t *testing.T) {
	cfg := NodeConfig{
		DefaultFee:  0.05,
		FeeSchedule: map[string]float64{"BLOCK": 0.02},
		Commands: map[string]CommandLimits{
			"xrGetBlockHash::BLOCK": {Fee: 0.01},
		},
	}

	if got := cfg.FeeFor("xrGetBlockHash", "BLOCK"); got != 0.01 {
		t.Fatalf("expected command-level fee 0.01, got %v", got)
	}
	if got := cfg.FeeFor("xrGetBlockCount", "BLOCK"); got != 0.02 {
		t.Fatalf("expected service fee 0.02, got %v", got)
	}
	if got := cfg.FeeFor("xrGetBlockCount", "OTHER"); got != 0.05 {
		t.Fatalf("expected default fee 0.05, got %v", got)
	}
}

func TestCachePresentAndStale(t *testing.T) {
	c := NewCache()
	id := registry.NodeID("n1")
	if _, ok := c.Get(id); ok {
		t.Fatalf("expected no config before Put")
	}

	c.Put(id, NodeConfig{DefaultFee: 0.01, FetchedAt: time.Now().Add(-time.Hour)})

	cfg, ok := c.Get(id)
	if !ok || !cfg.Present() {
		t.Fatalf("expected present config")
	}
	if !cfg.Stale(time.Minute) {
		t.Fatalf("expected config older than 1 minute to be stale")
	}

	stale := c.Stale([]registry.NodeID{id, "missing"}, time.Minute)
	if len(stale) != 2 {
		t.Fatalf("expected both ids stale, got %v", stale)
	}
}

func TestImmutableUntilReplaced(t *testing.T) {
	c := NewCache()
	id := registry.NodeID("n1")
	c.Put(id, NodeConfig{DefaultFee: 0.01})
	first, _ := c.Get(id)

	c.Put(id, NodeConfig{DefaultFee: 0.02})
	second, _ := c.Get(id)

	if first.DefaultFee == second.DefaultFee {
		t.Fatalf("expected replacement to change the whole record")
	}
}
