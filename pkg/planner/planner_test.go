package planner

import (
	"context"
	"testing"
	"time"

	"github.com/yourusername/xrouter/pkg/dial"
	"github.com/yourusername/xrouter/pkg/nodeconfig"
	"github.com/yourusername/xrouter/pkg/registry"
	"github.com/yourusername/xrouter/pkg/scoring"
)

func TestFullyQualifiedNames(t *testing.T) {
	wallet := Request{Service: "BLOCK", Command: "xrGetBlockCount"}
	if got := wallet.FullyQualifiedTop(); got != "xr::BLOCK" {
		t.Fatalf("top = %q", got)
	}
	if got := wallet.FullyQualifiedLeaf(); got != "xr::BLOCK::xrGetBlockCount" {
		t.Fatalf("leaf = %q", got)
	}

	plugin := Request{IsPlugin: true, Service: "CustomService"}
	if got := plugin.FullyQualifiedTop(); got != "xrs::CustomService" {
		t.Fatalf("plugin top = %q", got)
	}
	if plugin.FullyQualifiedLeaf() != plugin.FullyQualifiedTop() {
		t.Fatalf("plugin leaf must equal top")
	}
}

type alwaysConnected struct{}

func (alwaysConnected) Connected(registry.NodeID) bool { return true }

type neverConnected struct{}

func (neverConnected) Connected(registry.NodeID) bool { return false }

type staticFunds struct{ ok bool }

func (s staticFunds) CanCoverFee(string, float64) bool { return s.ok }

type successDialer struct{}

func (successDialer) Dial(context.Context, registry.Node) dial.Outcome {
	return dial.Outcome{Connected: true}
}

type failDialer struct{}

func (failDialer) Dial(context.Context, registry.Node) dial.Outcome {
	return dial.Outcome{Connected: false}
}

type staticFetcher struct{ cfg nodeconfig.NodeConfig }

func (f staticFetcher) FetchConfig(context.Context, registry.Node) (nodeconfig.NodeConfig, error) {
	return f.cfg, nil
}

func mkNode(id string, caps ...string) registry.Node {
	capSet := map[string]struct{}{"xr": {}}
	for _, c := range caps {
		capSet[c] = struct{}{}
	}
	return registry.Node{NodeID: registry.NodeID(id), Host: id + ":1", PaymentAddress: "addr-" + id, Capabilities: capSet, Running: true}
}

func newTestPlanner(reg *registry.Registry, cfgs *nodeconfig.Cache, scores *scoring.Table, conns Connections, fetcher ConfigFetcher, funds FundsChecker, dialer Dialer) *Planner {
	return New(Deps{
		Registry:    reg,
		Configs:     cfgs,
		Scores:      scores,
		DialCoord:   dial.New(),
		Connections: conns,
		Fetcher:     fetcher,
		Funds:       funds,
		Dial:        dialer,
	})
}

func TestResolveFiltersByCapabilityAndMaxFee(t *testing.T) {
	reg := registry.New()
	reg.Observe(mkNode("a", "xr::BLOCK"))
	reg.Observe(mkNode("b", "xr::BLOCK"))
	reg.Observe(mkNode("c")) // lacks xr::BLOCK

	cfgs := nodeconfig.NewCache()
	cfgs.Put("a", nodeconfig.NodeConfig{DefaultFee: 0.01})
	cfgs.Put("b", nodeconfig.NodeConfig{DefaultFee: 0.5})

	scores := scoring.New()
	p := newTestPlanner(reg, cfgs, scores, alwaysConnected{}, nil, staticFunds{true}, nil)

	res, err := p.Resolve(context.Background(), Request{
		Service: "BLOCK", Command: "xrGetBlockCount", N: 1,
		MaxFeeLocal: 0.1, CommandTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Selected) != 1 || res.Selected[0].NodeID != "a" {
		t.Fatalf("expected only node a selected, got %+v", res.Selected)
	}
}

func TestResolveReturnsNotEnoughNodesError(t *testing.T) {
	reg := registry.New()
	reg.Observe(mkNode("a", "xr::BLOCK"))

	cfgs := nodeconfig.NewCache()
	cfgs.Put("a", nodeconfig.NodeConfig{DefaultFee: 0.01})

	scores := scoring.New()
	p := newTestPlanner(reg, cfgs, scores, alwaysConnected{}, nil, staticFunds{true}, nil)

	_, err := p.Resolve(context.Background(), Request{
		Service: "BLOCK", Command: "xrGetBlockCount", N: 3,
		MaxFeeLocal: 1, CommandTimeout: time.Second,
	})
	var notEnough *NotEnoughNodesError
	if err == nil {
		t.Fatalf("expected NotEnoughNodesError")
	}
	if ok := asNotEnough(err, &notEnough); !ok || notEnough.Found != 1 || notEnough.Required != 3 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func asNotEnough(err error, target **NotEnoughNodesError) bool {
	if e, ok := err.(*NotEnoughNodesError); ok {
		*target = e
		return true
	}
	return false
}

func TestResolveRejectsRateLimited(t *testing.T) {
	reg := registry.New()
	reg.Observe(mkNode("a", "xr::BLOCK"))

	cfgs := nodeconfig.NewCache()
	cfgs.Put("a", nodeconfig.NodeConfig{
		Commands: map[string]nodeconfig.CommandLimits{
			"xrGetBlockCount::BLOCK": {Fee: 0.01, RateLimitMs: 60000, FetchLimit: 10},
		},
	})

	scores := scoring.New()
	p := newTestPlanner(reg, cfgs, scores, alwaysConnected{}, nil, staticFunds{true}, nil)
	p.NoteRequest("a", "xr::BLOCK::xrGetBlockCount")

	_, err := p.Resolve(context.Background(), Request{
		Service: "BLOCK", Command: "xrGetBlockCount", N: 1,
		MaxFeeLocal: 1, CommandTimeout: time.Second,
	})
	if err == nil {
		t.Fatalf("expected rate-limited node to be rejected, leaving not enough nodes")
	}
}

func TestResolveUnlimitedRateAllowsImmediateRepeat(t *testing.T) {
	reg := registry.New()
	reg.Observe(mkNode("a", "xr::BLOCK"))

	cfgs := nodeconfig.NewCache()
	cfgs.Put("a", nodeconfig.NodeConfig{
		Commands: map[string]nodeconfig.CommandLimits{
			"xrGetBlockCount::BLOCK": {Fee: 0.01, RateLimitMs: -1, FetchLimit: 10},
		},
	})

	scores := scoring.New()
	p := newTestPlanner(reg, cfgs, scores, alwaysConnected{}, nil, staticFunds{true}, nil)
	p.NoteRequest("a", "xr::BLOCK::xrGetBlockCount")

	res, err := p.Resolve(context.Background(), Request{
		Service: "BLOCK", Command: "xrGetBlockCount", N: 1,
		MaxFeeLocal: 1, CommandTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Selected) != 1 {
		t.Fatalf("expected node to remain eligible with rate_limit_ms=-1")
	}
}

func TestResolveDialsMissingAndFetchesConfig(t *testing.T) {
	reg := registry.New()
	reg.Observe(mkNode("a", "xr::BLOCK"))

	cfgs := nodeconfig.NewCache()
	scores := scoring.New()
	p := newTestPlanner(reg, cfgs, scores, neverConnected{}, staticFetcher{cfg: nodeconfig.NodeConfig{DefaultFee: 0.01}}, staticFunds{true}, successDialer{})

	res, err := p.Resolve(context.Background(), Request{
		Service: "BLOCK", Command: "xrGetBlockCount", N: 1,
		MaxFeeLocal: 1, CommandTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Selected) != 1 {
		t.Fatalf("expected dial+fetch to surface node a, got %+v", res.Selected)
	}
	if _, ok := cfgs.Get("a"); !ok {
		t.Fatalf("expected fetched config to be cached")
	}
}

func TestResolveFailedDialScoresPenalty(t *testing.T) {
	reg := registry.New()
	reg.Observe(mkNode("a", "xr::BLOCK"))

	cfgs := nodeconfig.NewCache()
	scores := scoring.New()
	p := newTestPlanner(reg, cfgs, scores, neverConnected{}, staticFetcher{}, staticFunds{true}, failDialer{})

	_, err := p.Resolve(context.Background(), Request{
		Service: "BLOCK", Command: "xrGetBlockCount", N: 1,
		MaxFeeLocal: 1, CommandTimeout: time.Second,
	})
	if err == nil {
		t.Fatalf("expected not-enough-nodes since the only candidate failed to dial")
	}
	if got := scores.Score("a"); got != scoring.DeltaUnparseableOrDial {
		t.Fatalf("expected dial failure penalty %d, got %d", scoring.DeltaUnparseableOrDial, got)
	}
}
