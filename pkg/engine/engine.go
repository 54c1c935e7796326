// Package engine implements the Query Execution Engine (spec.md §4.G):
// parameter validation, a planner call, per-peer fee generation, signed
// packet dispatch, registration with the Query Manager, a deadline poll
// loop, and most-common-reply reconciliation. Grounded on the teacher's
// HTTPRPCClient.Call (src/chainadapter/rpc/http.go) for the
// dispatch-N-peers-under-a-deadline shape and on
// metrics.AggregatedMetrics's success/failure counting style
// (src/chainadapter/metrics/metrics.go) for the reconciliation bookkeeping.
package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/yourusername/xrouter/pkg/nodeconfig"
	"github.com/yourusername/xrouter/pkg/planner"
	"github.com/yourusername/xrouter/pkg/query"
	"github.com/yourusername/xrouter/pkg/registry"
	"github.com/yourusername/xrouter/pkg/scoring"
	"github.com/yourusername/xrouter/pkg/xrerr"
	"github.com/yourusername/xrouter/pkg/xrpacket"
)

// DefaultCommandTimeout is spec.md §5's default per-command deadline.
const DefaultCommandTimeout = 30 * time.Second

// pollInterval is the fine-grained sleep used while waiting for replies
// (spec.md §4.G step 6: "≈5 ms").
const pollInterval = 5 * time.Millisecond

// FeeGenerator builds and releases per-peer fee-payment transactions
// (component I). Named collaborator so the engine does not depend on any
// specific chain backend.
type FeeGenerator interface {
	Generate(ctx context.Context, node registry.Node, paymentAddress string, fee float64) (txHex string, err error)
	Release(txHex string)
}

// Dispatcher sends a signed request packet to a peer, either over P2P or,
// when direct is true, over the HTTP fallback (spec.md §6). Replies are
// delivered asynchronously by the dispatcher calling AddReply/AddError on
// the Manager the engine was constructed with — the engine itself only
// polls for completion.
type Dispatcher interface {
	Send(ctx context.Context, node registry.Node, direct bool, pkt *xrpacket.RequestPacket) error
}

// Engine ties the planner, fee generator, dispatcher, query manager and
// score table together into Execute (spec.md §4.G).
type Engine struct {
	Planner    *planner.Planner
	Fees       FeeGenerator
	Dispatch   Dispatcher
	Manager    *query.Manager
	Scores     *scoring.Table
	Configs    *nodeconfig.Cache
	PrivateKey *btcec.PrivateKey

	CommandTimeout time.Duration
}

// Request is the input to Execute (spec.md §4.G contract).
type Request struct {
	Command     xrpacket.Command
	IsPlugin    bool
	Service     string // currency or plugin name
	CommandName string // wallet command string, e.g. "xrGetBlockCount"; empty for plugins
	N           int
	Params      []string
}

// Reply is one entry of the "allreplies" wrapper (spec.md §4.G step 10).
type Reply struct {
	NodePubKey registry.NodeID `json:"nodepubkey"`
	Score      int             `json:"score"`
	Reply      string          `json:"reply"`
}

// Response is the JSON-serializable outcome of Execute.
type Response struct {
	UUID       string  `json:"uuid"`
	Result     string  `json:"result"`
	AllReplies []Reply `json:"allreplies,omitempty"`
}

func (e *Engine) timeout() time.Duration {
	if e.CommandTimeout > 0 {
		return e.CommandTimeout
	}
	return DefaultCommandTimeout
}

// Execute runs the full ten-step algorithm of spec.md §4.G.
func (e *Engine) Execute(ctx context.Context, req Request) (*Response, error) {
	// Step 1: validate params.
	if err := validateParams(req.Command, req.Params); err != nil {
		return nil, err
	}

	id := uuid.New()
	uuidStr := id.String()

	// Step 2: resolve peers, one retry.
	planReq := planner.Request{
		IsPlugin:       req.IsPlugin,
		Service:        req.Service,
		Command:        req.CommandName,
		ParameterCount: len(req.Params),
		N:              req.N,
		CommandTimeout: e.timeout(),
	}
	result, err := e.Planner.Resolve(ctx, planReq)
	if err != nil {
		result, err = e.Planner.Resolve(ctx, planReq)
		if err != nil {
			var notEnough *planner.NotEnoughNodesError
			if ne, ok := err.(*planner.NotEnoughNodesError); ok {
				notEnough = ne
				return nil, xrerr.WithUUID(xrerr.NotEnoughNodes,
					fmt.Sprintf("found %d of %d required peers", notEnough.Found, notEnough.Required),
					uuidStr, err)
			}
			return nil, xrerr.WithUUID(xrerr.NotEnoughNodes, "planner failed", uuidStr, err)
		}
	}

	directSet := make(map[registry.NodeID]bool, len(result.DirectDial))
	for _, n := range result.DirectDial {
		directSet[n.NodeID] = true
	}

	// Step 3: generate fee payments, dropping peers on failure while total
	// selected stays >= N.
	type selected struct {
		node  registry.Node
		feeTx string
	}
	var peers []selected
	for _, n := range result.Selected {
		cfg, _ := e.Configs.Get(n.NodeID)
		fee := cfg.FeeFor(req.CommandName, req.Service)
		if fee <= 0 {
			peers = append(peers, selected{node: n})
			continue
		}
		addr := n.PaymentAddress
		if limits, ok := cfg.LimitsFor(req.CommandName, req.Service); ok && limits.PaymentAddress != "" {
			addr = limits.PaymentAddress
		}
		txHex, err := e.Fees.Generate(ctx, n, addr, fee)
		if err != nil {
			e.Scores.Adjust(n.NodeID, scoring.DeltaUnparseableOrDial)
			continue
		}
		peers = append(peers, selected{node: n, feeTx: txHex})
	}
	if len(peers) < req.N {
		for _, p := range peers {
			if p.feeTx != "" {
				e.Fees.Release(p.feeTx)
			}
		}
		return nil, xrerr.WithUUID(xrerr.NotEnoughNodes,
			fmt.Sprintf("only %d of %d peers had usable fee payments", len(peers), req.N), uuidStr, nil)
	}

	// Step 4/5: build and sign packets, register with the Query Manager
	// before sending, then dispatch.
	for _, p := range peers {
		e.Manager.AddQuery(uuidStr, p.node.NodeID)
	}
	for _, p := range peers {
		pkt := &xrpacket.RequestPacket{
			Command:  req.Command,
			Service:  req.Service,
			FeeTxHex: p.feeTx,
			Params:   req.Params,
		}
		copyUUID(pkt, id)
		pkt.Sign(e.PrivateKey)

		direct := directSet[p.node.NodeID]
		if err := e.Dispatch.Send(ctx, p.node, direct, pkt); err != nil {
			e.Manager.AddError(uuidStr, p.node.NodeID, err.Error())
		}
	}

	// Step 6: poll until every slot settles or the deadline elapses.
	deadline := time.Now().Add(e.timeout())
pollLoop:
	for time.Now().Before(deadline) {
		if e.Manager.AllSettled(uuidStr) {
			break
		}
		select {
		case <-ctx.Done():
			break pollLoop
		case <-time.After(pollInterval):
		}
	}

	// Step 7: penalize and unlock non-responders.
	replies := e.Manager.Replies(uuidStr)
	feeByNode := make(map[registry.NodeID]string, len(peers))
	for _, p := range peers {
		feeByNode[p.node.NodeID] = p.feeTx
	}
	for _, r := range replies {
		if r.State == query.Pending {
			e.Scores.Adjust(r.Node, scoring.DeltaNonResponse)
			if tx := feeByNode[r.Node]; tx != "" {
				e.Fees.Release(tx)
			}
		}
	}

	// Step 8: reconcile via most-common reply.
	costOf := func(n registry.NodeID) float64 {
		cfg, _ := e.Configs.Get(n)
		return cfg.FeeFor(req.CommandName, req.Service)
	}
	consensus := e.Manager.MostCommonReply(uuidStr, costOf)
	if consensus.Count == 0 {
		e.Manager.Purge(uuidStr)
		return nil, xrerr.WithUUID(xrerr.NoReplies, "no peer replied", uuidStr, nil)
	}
	for _, n := range consensus.Agreeing {
		e.Scores.Adjust(n, scoring.ConsensusBonus(consensus.Count))
	}
	for _, n := range consensus.Dissenting {
		e.Scores.Adjust(n, scoring.DeltaDissent)
	}
	for _, r := range replies {
		if r.State == query.Received && isInternalServerError(r.Payload) {
			e.Scores.Adjust(r.Node, scoring.DeltaInternalError)
		}
	}

	// Step 9: release fee UTXOs for any error reply.
	for _, r := range replies {
		if r.State == query.Errored {
			if tx := feeByNode[r.Node]; tx != "" {
				e.Fees.Release(tx)
			}
		}
	}

	resp := &Response{UUID: uuidStr, Result: consensus.Payload}
	if len(replies) > 1 {
		resp.AllReplies = make([]Reply, 0, len(replies))
		for _, r := range replies {
			if r.State != query.Received {
				continue
			}
			resp.AllReplies = append(resp.AllReplies, Reply{
				NodePubKey: r.Node,
				Score:      e.Scores.Score(r.Node),
				Reply:      r.Payload,
			})
		}
	}

	e.Manager.Purge(uuidStr)
	return resp, nil
}

func copyUUID(pkt *xrpacket.RequestPacket, id uuid.UUID) {
	b := id
	copy(pkt.UUID[:], b[:])
}

func isInternalServerError(payload string) bool {
	var probe struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return false
	}
	return probe.Code == xrerr.InternalServerError.Code()
}

// validateParams enforces the per-command shape checks named in spec.md
// §4.G step 1: numeric block height, hex transaction hash, and a bloom
// filter length divisible by 10.
func validateParams(cmd xrpacket.Command, params []string) error {
	switch cmd {
	case xrpacket.CmdGetBlockHash, xrpacket.CmdGetBlockAtTime:
		if len(params) < 1 {
			return xrerr.New(xrerr.InvalidParameters, "missing block height", nil)
		}
		if _, err := strconv.ParseInt(params[0], 10, 64); err != nil {
			return xrerr.New(xrerr.InvalidParameters, "block height must be numeric", err)
		}
	case xrpacket.CmdGetBlock, xrpacket.CmdGetTransaction, xrpacket.CmdDecodeRawTransaction:
		if len(params) < 1 {
			return xrerr.New(xrerr.InvalidParameters, "missing hash parameter", nil)
		}
		if _, err := hex.DecodeString(params[0]); err != nil {
			return xrerr.New(xrerr.InvalidParameters, "hash parameter must be hex", err)
		}
	case xrpacket.CmdGetTxBloomFilter:
		if len(params) < 1 || len(params[0])%10 != 0 {
			return xrerr.New(xrerr.InvalidParameters, "bloom filter length must be divisible by 10", nil)
		}
	}
	return nil
}
