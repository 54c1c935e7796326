// Package planner resolves a service request into a sorted list of suitable
// peers (spec.md §4.F), grounded on the teacher's
// provider.ProviderRegistry.GetProviderWithFallback for the "sort by
// priority, try in order, health-check, fall through" shape, including an
// adapted version of its bubble-sort-by-priority helper, and on the
// teacher's per-(node,service) rate-limit bookkeeping style.
package planner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/yourusername/xrouter/pkg/dial"
	"github.com/yourusername/xrouter/pkg/nodeconfig"
	"github.com/yourusername/xrouter/pkg/registry"
	"github.com/yourusername/xrouter/pkg/scoring"
)

// DefaultP2PPort is the overlay's standard P2P listening port. Nodes
// advertising any other port in their config must be contacted over HTTP
// (spec.md §4.F).
const DefaultP2PPort = 41412

// Connections reports whether the transport already holds an open
// connection to a node. Named collaborator interface per spec.md §1 — the
// P2P transport itself is out of scope for this module.
type Connections interface {
	Connected(id registry.NodeID) bool
}

// ConfigFetcher fetches a fresh NodeConfig from a freshly (or previously)
// dialed peer, e.g. by round-tripping an xrGetConfig packet (component H).
type ConfigFetcher interface {
	FetchConfig(ctx context.Context, n registry.Node) (nodeconfig.NodeConfig, error)
}

// FundsChecker reports whether the local wallet can cover a fee payment to
// an address. Named collaborator per spec.md §1 ("wallet signing/UTXO
// selection facilities" are out of scope here).
type FundsChecker interface {
	CanCoverFee(paymentAddress string, fee float64) bool
}

// Dialer opens a connection to a node, out-of-scope transport collaborator.
type Dialer interface {
	Dial(ctx context.Context, n registry.Node) dial.Outcome
}

// Request describes a service resolution request (spec.md §4.F inputs).
type Request struct {
	IsPlugin       bool
	Service        string // currency (wallet) or plugin name
	Command        string // wallet command; empty for plugin requests
	ParameterCount int
	N              int
	Exclude        map[registry.NodeID]struct{}
	MaxFeeLocal    float64
	P2POnly        bool
	CommandTimeout time.Duration
}

// FullyQualifiedTop computes the top-level fully-qualified service name
// (spec.md §4.F step 1 / §6 grammar).
func (r Request) FullyQualifiedTop() string {
	if r.IsPlugin {
		return "xrs::" + r.Service
	}
	return "xr::" + r.Service
}

// FullyQualifiedLeaf computes the leaf fully-qualified service name used for
// per-command limits and rate limiting. Plugin requests have no separate
// leaf, so it equals the top-level name.
func (r Request) FullyQualifiedLeaf() string {
	if r.IsPlugin {
		return r.FullyQualifiedTop()
	}
	return r.FullyQualifiedTop() + "::" + r.Command
}

// NotEnoughNodesError is returned when fewer than N suitable peers remain
// after filtering (spec.md §4.F "Failure modes").
type NotEnoughNodesError struct {
	Found    int
	Required int
}

func (e *NotEnoughNodesError) Error() string {
	return fmt.Sprintf("not enough nodes: found %d, need %d", e.Found, e.Required)
}

// Result is the planner's output: a sorted selection of >= N peers and the
// subset of those reachable only by HTTP.
type Result struct {
	Selected   []registry.Node
	DirectDial []registry.Node
}

// Planner implements the seven-step algorithm of spec.md §4.F.
type Planner struct {
	registry    *registry.Registry
	configs     *nodeconfig.Cache
	scores      *scoring.Table
	dialer      *dial.Coordinator
	connections Connections
	fetcher     ConfigFetcher
	funds       FundsChecker
	dial        Dialer

	rmu      sync.Mutex
	lastSeen map[string]time.Time // "(node,service)" -> last request time
}

// Deps bundles the Planner's collaborators.
type Deps struct {
	Registry    *registry.Registry
	Configs     *nodeconfig.Cache
	Scores      *scoring.Table
	DialCoord   *dial.Coordinator
	Connections Connections
	Fetcher     ConfigFetcher
	Funds       FundsChecker
	Dial        Dialer
}

func New(d Deps) *Planner {
	return &Planner{
		registry:    d.Registry,
		configs:     d.Configs,
		scores:      d.Scores,
		dialer:      d.DialCoord,
		connections: d.Connections,
		fetcher:     d.Fetcher,
		funds:       d.Funds,
		dial:        d.Dial,
		lastSeen:    make(map[string]time.Time),
	}
}

func rateKey(id registry.NodeID, service string) string {
	return string(id) + "\x00" + service
}

// NoteRequest records that a request was just sent to (node, service), used
// by the rate-limit filter in step 4.
func (p *Planner) NoteRequest(id registry.NodeID, service string) {
	p.rmu.Lock()
	defer p.rmu.Unlock()
	p.lastSeen[rateKey(id, service)] = time.Now()
}

func (p *Planner) timeSinceLastRequest(id registry.NodeID, service string) (time.Duration, bool) {
	p.rmu.Lock()
	defer p.rmu.Unlock()
	t, ok := p.lastSeen[rateKey(id, service)]
	if !ok {
		return 0, false
	}
	return time.Since(t), true
}

type candidate struct {
	node      registry.Node
	cfg       nodeconfig.NodeConfig
	hasConfig bool
	connected bool
}

// Resolve runs the full seven-step algorithm and returns >= N suitable
// peers, or a *NotEnoughNodesError.
func (p *Planner) Resolve(ctx context.Context, req Request) (Result, error) {
	topService := req.FullyQualifiedTop()
	leafService := req.FullyQualifiedLeaf()

	// Step 2: registry filter.
	var pool []registry.Node
	for _, n := range p.registry.WithCapability(topService) {
		if !n.Running || !n.HasCapability("xr") {
			continue
		}
		if _, excluded := req.Exclude[n.NodeID]; excluded {
			continue
		}
		pool = append(pool, n)
	}

	// Step 3: partition by connection/config state (informational; drives
	// the dial-missing step below, kept/used in the sort and dial steps).
	cands := make([]*candidate, 0, len(pool))
	for _, n := range pool {
		cfg, hasCfg := p.configs.Get(n.NodeID)
		connected := p.connections != nil && p.connections.Connected(n.NodeID)
		cands = append(cands, &candidate{node: n, cfg: cfg, hasConfig: hasCfg, connected: connected})
	}

	// Step 4: per-candidate rejection rules.
	filtered := cands[:0]
	for _, c := range cands {
		if p.rejects(c, req, leafService, topService) {
			continue
		}
		filtered = append(filtered, c)
	}
	cands = filtered

	// Step 5: sort by (config present, score desc, fee asc).
	sortCandidates(cands, p.scores, req)

	deadline := time.Now().Add(req.CommandTimeout)

	// Step 6: dial missing nodes under a bounded work budget, fetching
	// config for freshly (or already) connected nodes lacking one.
	p.dialAndFetchMissing(ctx, cands, deadline)

	// Step 7: collect suitable peers until N in hand or deadline elapses.
	var selected []registry.Node
	var directDial []registry.Node
	for _, c := range cands {
		if len(selected) >= req.N {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		if !c.hasConfig {
			continue
		}
		selected = append(selected, c.node)
		if c.cfg.Port != 0 && c.cfg.Port != DefaultP2PPort {
			directDial = append(directDial, c.node)
		}
	}

	if len(selected) < req.N {
		return Result{}, &NotEnoughNodesError{Found: len(selected), Required: req.N}
	}
	return Result{Selected: selected, DirectDial: directDial}, nil
}

// rejects applies the five rejection rules of spec.md §4.F step 4.
func (p *Planner) rejects(c *candidate, req Request, leafService, topService string) bool {
	if c.hasConfig {
		fee := c.cfg.FeeFor(req.Command, req.Service)
		if fee > req.MaxFeeLocal {
			return true
		}
		addr := c.node.PaymentAddress
		if limits, ok := c.cfg.LimitsFor(req.Command, req.Service); ok {
			if limits.PaymentAddress != "" {
				addr = limits.PaymentAddress
			}
			if limits.Disabled {
				return true
			}
		}
		if p.funds != nil && fee > 0 && !p.funds.CanCoverFee(addr, fee) {
			return true
		}
		if limits, ok := c.cfg.LimitsFor(req.Command, req.Service); ok {
			if limits.FetchLimit > 0 && req.ParameterCount > limits.FetchLimit {
				return true
			}
			if limits.RateLimitMs >= 0 {
				if elapsed, seen := p.timeSinceLastRequest(c.node.NodeID, leafService); seen {
					if elapsed < time.Duration(limits.RateLimitMs)*time.Millisecond {
						return true
					}
				}
			}
		}
		if req.P2POnly && c.cfg.Port != 0 && c.cfg.Port != DefaultP2PPort {
			return true
		}
	}
	return false
}

// sortCandidates implements step 5: configs-present first, then higher
// score, then lower fee. Adapted from the teacher's sortConfigsByPriority
// (src/chainadapter/provider/registry.go), which uses a plain bubble sort
// because the candidate set is always small — this keeps that choice rather
// than reaching for sort.Slice's introsort for an n that never exceeds a few
// tens of nodes.
func sortCandidates(cands []*candidate, scores *scoring.Table, req Request) {
	n := len(cands)
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-1-i; j++ {
			if candidateLess(cands[j+1], cands[j], scores, req) {
				cands[j], cands[j+1] = cands[j+1], cands[j]
			}
		}
	}
}

// candidateLess reports whether a should sort before b.
func candidateLess(a, b *candidate, scores *scoring.Table, req Request) bool {
	if a.hasConfig != b.hasConfig {
		return a.hasConfig
	}
	sa, sb := scores.Score(a.node.NodeID), scores.Score(b.node.NodeID)
	if sa != sb {
		return sa > sb
	}
	if a.hasConfig && b.hasConfig {
		fa := a.cfg.FeeFor(req.Command, req.Service)
		fb := b.cfg.FeeFor(req.Command, req.Service)
		return fa < fb
	}
	return false
}

// dialAndFetchMissing runs step 6: dials not-yet-connected candidates under
// a 2*NumCPU concurrency budget via the Pending-Connection Coordinator, then
// fetches config for any connected candidate still missing one. Dial
// timeouts/failures apply the -5/-10 score penalties from spec.md §4.F
// step 7.
func (p *Planner) dialAndFetchMissing(ctx context.Context, cands []*candidate, deadline time.Time) {
	budget := 2 * runtime.NumCPU()
	sem := make(chan struct{}, budget)
	var wg sync.WaitGroup

	for _, c := range cands {
		if c.connected || p.dial == nil {
			continue
		}
		c := c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			dialCtx, cancel := context.WithDeadline(ctx, deadline)
			defer cancel()

			outcome := p.dialer.Dial(c.node.NodeID, func() dial.Outcome {
				return p.dial.Dial(dialCtx, c.node)
			})

			switch {
			case outcome.Connected:
				c.connected = true
			case outcome.TimedOut:
				p.scores.Adjust(c.node.NodeID, scoring.DeltaMinorInfraction) // -5, per spec.md §4.F step 7
			default:
				p.scores.Adjust(c.node.NodeID, scoring.DeltaUnparseableOrDial)
			}
		}()
	}
	wg.Wait()

	for _, c := range cands {
		if !c.connected || c.hasConfig || p.fetcher == nil {
			continue
		}
		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		cfg, err := p.fetcher.FetchConfig(fetchCtx, c.node)
		cancel()
		if err != nil {
			continue
		}
		c.cfg = cfg
		c.hasConfig = true
		p.configs.Put(c.node.NodeID, cfg)
	}
}
