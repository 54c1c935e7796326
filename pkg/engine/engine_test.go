package engine

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/yourusername/xrouter/pkg/dial"
	"github.com/yourusername/xrouter/pkg/nodeconfig"
	"github.com/yourusername/xrouter/pkg/planner"
	"github.com/yourusername/xrouter/pkg/query"
	"github.com/yourusername/xrouter/pkg/registry"
	"github.com/yourusername/xrouter/pkg/scoring"
	"github.com/yourusername/xrouter/pkg/xrerr"
	"github.com/yourusername/xrouter/pkg/xrpacket"
)

type fakeFees struct{ released []string }

func (f *fakeFees) Generate(context.Context, registry.Node, string, float64) (string, error) {
	return "feetxhex", nil
}
func (f *fakeFees) Release(tx string) { f.released = append(f.released, tx) }

// fakeDispatcher immediately injects a reply into the manager, simulating a
// peer that answers instantly.
type fakeDispatcher struct {
	mgr          *query.Manager
	replyFor     map[registry.NodeID]string
	errorFor     map[registry.NodeID]string
	unresponsive map[registry.NodeID]bool
}

func (d *fakeDispatcher) Send(ctx context.Context, n registry.Node, direct bool, pkt *xrpacket.RequestPacket) error {
	if d.unresponsive[n.NodeID] {
		return nil
	}
	if reason, ok := d.errorFor[n.NodeID]; ok {
		d.mgr.AddError(uuidFromPacket(pkt), n.NodeID, reason)
		return nil
	}
	d.mgr.AddReply(uuidFromPacket(pkt), n.NodeID, d.replyFor[n.NodeID])
	return nil
}

func uuidFromPacket(pkt *xrpacket.RequestPacket) string {
	id, err := uuid.FromBytes(pkt.UUID[:])
	if err != nil {
		return ""
	}
	return id.String()
}

func mkNode(id string) registry.Node {
	return registry.Node{
		NodeID:         registry.NodeID(id),
		Host:           id + ":1",
		PaymentAddress: "addr-" + id,
		Capabilities:   map[string]struct{}{"xr": {}, "xr::BLOCK": {}},
		Running:        true,
	}
}

func newEngine(t *testing.T, nodes []registry.Node, dispatcher *fakeDispatcher) (*Engine, *query.Manager, *scoring.Table) {
	t.Helper()
	reg := registry.New()
	cfgs := nodeconfig.NewCache()
	for _, n := range nodes {
		reg.Observe(n)
		cfgs.Put(n.NodeID, nodeconfig.NodeConfig{DefaultFee: 0})
	}
	scores := scoring.New()
	pl := planner.New(planner.Deps{
		Registry:    reg,
		Configs:     cfgs,
		Scores:      scores,
		DialCoord:   dial.New(),
		Connections: allConnected{},
	})
	mgr := query.NewManager()
	dispatcher.mgr = mgr
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return &Engine{
		Planner:        pl,
		Fees:           &fakeFees{},
		Dispatch:       dispatcher,
		Manager:        mgr,
		Scores:         scores,
		Configs:        cfgs,
		PrivateKey:     priv,
		CommandTimeout: 200 * time.Millisecond,
	}, mgr, scores
}

type allConnected struct{}

func (allConnected) Connected(registry.NodeID) bool { return true }

func TestExecuteHappyPathConsensus(t *testing.T) {
	nodes := []registry.Node{mkNode("a"), mkNode("b")}
	d := &fakeDispatcher{
		replyFor: map[registry.NodeID]string{"a": "123456", "b": "123456"},
	}
	e, _, scores := newEngine(t, nodes, d)

	resp, err := e.Execute(context.Background(), Request{
		Command: xrpacket.CmdGetBlockCount, Service: "BLOCK", CommandName: "xrGetBlockCount", N: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result != "123456" {
		t.Fatalf("expected consensus 123456, got %q", resp.Result)
	}
	if scores.Score("a") != scoring.ConsensusBonus(2) || scores.Score("b") != scoring.ConsensusBonus(2) {
		t.Fatalf("expected both peers to receive the consensus bonus, got a=%d b=%d", scores.Score("a"), scores.Score("b"))
	}
}

func TestExecuteInvalidParametersRejected(t *testing.T) {
	nodes := []registry.Node{mkNode("a")}
	d := &fakeDispatcher{}
	e, _, _ := newEngine(t, nodes, d)

	_, err := e.Execute(context.Background(), Request{
		Command: xrpacket.CmdGetBlockHash, Service: "BLOCK", CommandName: "xrGetBlockHash", N: 1,
		Params: []string{"not-a-number"},
	})
	if !xrerr.Is(err, xrerr.InvalidParameters) {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}
}

func TestExecuteDivergentRepliesPenalizesDissenter(t *testing.T) {
	nodes := []registry.Node{mkNode("a"), mkNode("b"), mkNode("c")}
	d := &fakeDispatcher{
		replyFor: map[registry.NodeID]string{"a": "100", "b": "100", "c": "101"},
	}
	e, _, scores := newEngine(t, nodes, d)

	resp, err := e.Execute(context.Background(), Request{
		Command: xrpacket.CmdGetBlockCount, Service: "BLOCK", CommandName: "xrGetBlockCount", N: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result != "100" {
		t.Fatalf("expected consensus 100, got %q", resp.Result)
	}
	if scores.Score("c") != scoring.DeltaDissent {
		t.Fatalf("expected dissenter penalty %d, got %d", scoring.DeltaDissent, scores.Score("c"))
	}
}
