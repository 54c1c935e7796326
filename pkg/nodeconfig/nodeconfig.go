// Package nodeconfig caches per-node advertised fees, limits and plugin
// specs (spec.md §3 "Node Config"), grounded on the shape of the teacher's
// storage.TransactionStateStore (src/chainadapter/storage/store.go) for the
// store contract and provider.ProviderConfigStore
// (src/chainadapter/provider/config.go) for the per-peer config record.
package nodeconfig

import (
	"sync"
	"time"

	"github.com/yourusername/xrouter/pkg/registry"
)

// CommandLimits is the per-(command, service) triple from spec.md §3.
type CommandLimits struct {
	Fee            float64 // fixed-point currency
	RateLimitMs    int64   // -1 means unlimited
	FetchLimit     int     // max parameter count
	TimeoutS       int
	Disabled       bool
	PaymentAddress string // overrides the node default when non-empty
}

// PrivateBackend describes how a plugin dispatches to its backing process,
// decoded from the original_source/ `private::*` config keys (SPEC_FULL §9.2).
// Never dialed by this module directly.
type PrivateBackend struct {
	Type string // "rpc" or "docker"

	// type == "rpc"
	RPCIP       string
	RPCPort     int
	RPCUser     string
	RPCPassword string

	// type == "docker"
	ContainerName string
	Command       string
	Args          []string
	QuoteArgs     bool
}

// PluginSpec is a custom xrs::<plugin> service advertisement, richer than
// spec.md's CommandLimits summary per SPEC_FULL §3's supplemented feature.
type PluginSpec struct {
	Parameters          []string // e.g. []string{"string", "bool", "int"}
	Fee                 float64
	PaymentAddress      string
	ClientRequestLimit  int // -1 = unlimited
	Disabled            bool
	Private             *PrivateBackend
}

// NodeConfig is the locally cached advertisement for one service node.
type NodeConfig struct {
	PublicText  string // opaque blob forwarded to other parties
	DefaultFee  float64
	FeeSchedule map[string]float64 // service -> fee

	// Commands maps "command::service" -> CommandLimits.
	Commands map[string]CommandLimits

	// Plugins maps plugin name -> PluginSpec.
	Plugins map[string]PluginSpec

	// Port is the node's advertised dial port, from the "host"/"port"
	// configuration file options in spec.md §6. Zero means "advertises the
	// default P2P port"; the planner treats any other value as requiring
	// direct HTTP dial (SPEC_FULL §4.F).
	Port int

	FetchedAt time.Time
}

// Present reports whether the config was ever fetched successfully.
func (c NodeConfig) Present() bool { return !c.FetchedAt.IsZero() }

// Stale reports whether the config was fetched more than maxAge ago.
func (c NodeConfig) Stale(maxAge time.Duration) bool {
	if !c.Present() {
		return true
	}
	return time.Since(c.FetchedAt) > maxAge
}

func commandKey(command, service string) string { return command + "::" + service }

// FeeFor resolves the fee for a (command, service) pair, falling back to the
// service-level schedule, then the node default.
func (c NodeConfig) FeeFor(command, service string) float64 {
	if cl, ok := c.Commands[commandKey(command, service)]; ok {
		return cl.Fee
	}
	if fee, ok := c.FeeSchedule[service]; ok {
		return fee
	}
	return c.DefaultFee
}

// LimitsFor returns the CommandLimits for a (command, service) pair and
// whether an explicit entry exists.
func (c NodeConfig) LimitsFor(command, service string) (CommandLimits, bool) {
	cl, ok := c.Commands[commandKey(command, service)]
	return cl, ok
}

// Cache is the concurrency-safe per-node config store. It is immutable
// per-entry: a Put replaces the whole record atomically, it never merges.
type Cache struct {
	mu   sync.RWMutex
	byID map[registry.NodeID]NodeConfig
}

func NewCache() *Cache {
	return &Cache{byID: make(map[registry.NodeID]NodeConfig)}
}

// Get returns the cached config for a node and whether one is present.
func (c *Cache) Get(id registry.NodeID) (NodeConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.byID[id]
	return cfg, ok
}

// Put atomically replaces the config for a node.
func (c *Cache) Put(id registry.NodeID, cfg NodeConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.FetchedAt.IsZero() {
		cfg.FetchedAt = time.Now()
	}
	c.byID[id] = cfg
}

// Delete drops a cached config, e.g. after the node is banned or revoked.
func (c *Cache) Delete(id registry.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}

// Stale returns the node IDs whose cached config is missing or older than
// maxAge, used by the background config-refresh worker.
func (c *Cache) Stale(ids []registry.NodeID, maxAge time.Duration) []registry.NodeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []registry.NodeID
	for _, id := range ids {
		cfg, ok := c.byID[id]
		if !ok || cfg.Stale(maxAge) {
			out = append(out, id)
		}
	}
	return out
}

// Len reports the number of cached configs (diagnostics/tests).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
