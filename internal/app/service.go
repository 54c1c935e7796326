// Service is the node's top-level collaborator graph: registry, scoring
// table, node-config cache, planner, engine, swap store and chain-adapter
// registry, plus the background workers that keep them current. Adapted
// from the teacher's internal/app package, which held the same
// "one struct owns everything, construct once at startup" role for its
// wallet/provider config; narrowed here to XRouter's routing collaborators.
//
// Per spec.md §9's design note, the server layer (not implemented in this
// package) must hold only a Query Manager and Scoring Table handle, not a
// reference back into Service, to avoid the server/app/query-manager
// reference cycle the note warns about.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/xrouter/internal/services/chainadapter"
	"github.com/yourusername/xrouter/internal/services/keystore"
	"github.com/yourusername/xrouter/pkg/dial"
	"github.com/yourusername/xrouter/pkg/engine"
	"github.com/yourusername/xrouter/pkg/feegen"
	"github.com/yourusername/xrouter/pkg/metrics"
	"github.com/yourusername/xrouter/pkg/nodeconfig"
	"github.com/yourusername/xrouter/pkg/planner"
	"github.com/yourusername/xrouter/pkg/query"
	"github.com/yourusername/xrouter/pkg/registry"
	"github.com/yourusername/xrouter/pkg/scoring"
	"github.com/yourusername/xrouter/pkg/swap"
)

// Service owns the node's long-lived collaborators and the workers that
// poll/expire them. Build it once per process via New, then Start it bound
// to a context that cancels on shutdown.
type Service struct {
	Config   *Config
	Registry *registry.Registry
	Scores   *scoring.Table
	Configs  *nodeconfig.Cache
	Dial     *dial.Coordinator
	Manager  *query.Manager
	Planner  *planner.Planner
	Engine   *engine.Engine
	Chains   *chainadapter.Registry
	Keystore *keystore.KeyStore
	Metrics  *metrics.Registry

	swapsMu sync.Mutex
	swaps   map[string]*swap.Machine
}

// Deps are the per-node collaborators New needs that can't be constructed
// generically: the dispatcher that actually puts bytes on the wire, the
// connection/funds checkers the planner needs, and the node's signing key.
type Deps struct {
	Config      *Config
	Keystore    *keystore.KeyStore
	Connections planner.Connections
	Funds       planner.FundsChecker
	Fetcher     planner.ConfigFetcher
	Dialer      planner.Dialer
	Dispatcher  engine.Dispatcher

	// FeeChainID and FeeSourceAddr select the chain and hot-wallet
	// address the node pays routing fees from. XRouter fees are always
	// settled in whatever single coin the operator configured, regardless
	// of which chain a command targets.
	FeeChainID    string
	FeeSourceAddr string
}

func New(d Deps) (*Service, error) {
	if d.Config == nil {
		return nil, fmt.Errorf("app: config is required")
	}

	reg := registry.New()
	scores := scoring.New()
	configs := nodeconfig.NewCache()
	dialCoord := dial.New()
	manager := query.NewManager()

	pl := planner.New(planner.Deps{
		Registry:    reg,
		Configs:     configs,
		Scores:      scores,
		DialCoord:   dialCoord,
		Connections: d.Connections,
		Fetcher:     d.Fetcher,
		Funds:       d.Funds,
		Dial:        d.Dialer,
	})

	chains := chainadapter.NewRegistry(d.Keystore, toChainConfigs(d.Config.Chains))

	eng := &engine.Engine{
		Planner:  pl,
		Dispatch: d.Dispatcher,
		Manager:  manager,
		Scores:   scores,
		Configs:  configs,
	}
	if d.FeeChainID != "" {
		adapter, err := chains.Adapter(d.FeeChainID)
		if err != nil {
			return nil, fmt.Errorf("app: fee chain adapter: %w", err)
		}
		eng.Fees = feegen.New(d.FeeChainID, d.FeeSourceAddr, adapter, chains.FeeLocker(d.FeeChainID))
	}

	return &Service{
		Config:   d.Config,
		Registry: reg,
		Scores:   scores,
		Configs:  configs,
		Dial:     dialCoord,
		Manager:  manager,
		Planner:  pl,
		Engine:   eng,
		Chains:   chains,
		Keystore: d.Keystore,
		Metrics:  metrics.New(),
		swaps:    make(map[string]*swap.Machine),
	}, nil
}

func toChainConfigs(entries []ChainEntry) []chainadapter.ChainConfig {
	out := make([]chainadapter.ChainConfig, 0, len(entries))
	for _, e := range entries {
		out = append(out, chainadapter.ChainConfig{
			ChainID:   e.ChainID,
			Endpoints: e.Endpoints,
			Network:   e.Network,
			EVMChain:  e.EVMChain,
		})
	}
	return out
}

// FeeGeneratorFor builds an engine.FeeGenerator for the given chain ID,
// backed by the node's own chain-adapter and keystore. The engine's own
// generator is built directly by New from Deps.FeeChainID, not through this
// method.
func (s *Service) FeeGeneratorFor(chainID, sourceAddress string) (engine.FeeGenerator, error) {
	adapter, err := s.Chains.Adapter(chainID)
	if err != nil {
		return nil, err
	}
	return feegen.New(chainID, sourceAddress, adapter, s.Chains.FeeLocker(chainID)), nil
}

// NewSwap registers a new atomic-swap state machine under id, e.g. the
// hashed-secret hex, so later commands (e.g. swap status) can look it up by
// id.
func (s *Service) NewSwap(id string, role swap.Role, params swap.Params) (*swap.Machine, error) {
	m, err := swap.NewMachine(role, params)
	if err != nil {
		return nil, err
	}
	s.swapsMu.Lock()
	defer s.swapsMu.Unlock()
	s.swaps[id] = m
	s.Metrics.RecordSwapTransition("none", m.State.String())
	return m, nil
}

func (s *Service) Swap(id string) (*swap.Machine, bool) {
	s.swapsMu.Lock()
	defer s.swapsMu.Unlock()
	m, ok := s.swaps[id]
	return m, ok
}

// configTTL is how long a cached NodeConfig is trusted before the
// background refresh loop re-fetches it.
const configTTL = 15 * time.Minute

// Start runs the node's background maintenance loop until ctx is cancelled:
// periodically re-fetching any known peer's config that has gone stale,
// grounded on the teacher's polling-goroutine-per-subsystem style.
func (s *Service) Start(ctx context.Context, fetcher planner.ConfigFetcher) {
	go s.refreshConfigsLoop(ctx, fetcher)
}

func (s *Service) refreshConfigsLoop(ctx context.Context, fetcher planner.ConfigFetcher) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshStaleConfigs(ctx, fetcher)
		}
	}
}

func (s *Service) refreshStaleConfigs(ctx context.Context, fetcher planner.ConfigFetcher) {
	nodes := s.Registry.Snapshot()
	ids := make([]registry.NodeID, 0, len(nodes))
	byID := make(map[registry.NodeID]registry.Node, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.NodeID)
		byID[n.NodeID] = n
	}
	for _, id := range s.Configs.Stale(ids, configTTL) {
		cfg, err := fetcher.FetchConfig(ctx, byID[id])
		if err != nil {
			continue
		}
		s.Configs.Put(id, cfg)
	}
}
