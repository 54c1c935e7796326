// Package app wires the node's top-level collaborators: registry, scoring
// table, planner, engine, chain-adapter registry, and swap store. Config.go
// holds the node's persisted app configuration, adapted from the teacher's
// AppConfig (wallet metadata + provider list encrypted in app_config.enc)
// into the node operator's chain-adapter endpoint list and seed peers,
// encrypted the same way.
package app

import (
	"encoding/json"
	"time"
)

// Config is the node's top-level persisted configuration. It is encrypted
// at rest with Argon2id+AES-256-GCM by SaveConfig/LoadConfig in storage.go.
type Config struct {
	Version   string       `json:"version"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	SeedPeers []string     `json:"seedPeers"` // addr:port of bootstrap service nodes
	Chains    []ChainEntry `json:"chains"`    // per-chain RPC endpoint configuration
	Settings  NodeSettings `json:"settings"`
}

// ChainEntry configures one chain's JSON-RPC backend, mirroring
// internal/services/chainadapter.ChainConfig's on-disk form.
type ChainEntry struct {
	ChainID   string   `json:"chainId"`
	Endpoints []string `json:"endpoints"`
	Network   string   `json:"network,omitempty"`
	EVMChain  int64    `json:"evmChain,omitempty"`
	FeePct    string   `json:"feePct"` // fixed-point fee percentage charged for this chain
}

// NodeSettings stores node-wide operational knobs.
type NodeSettings struct {
	P2PPort          int `json:"p2pPort"`
	MaxPendingQuotes int `json:"maxPendingQuotes"`
}

func NewConfig() *Config {
	now := time.Now()
	return &Config{
		Version:   "1.0.0",
		CreatedAt: now,
		UpdatedAt: now,
		SeedPeers: []string{},
		Chains:    []ChainEntry{},
		Settings: NodeSettings{
			P2PPort:          41412,
			MaxPendingQuotes: 64,
		},
	}
}

func (c *Config) AddChain(entry ChainEntry) {
	for i, existing := range c.Chains {
		if existing.ChainID == entry.ChainID {
			c.Chains[i] = entry
			c.UpdatedAt = time.Now()
			return
		}
	}
	c.Chains = append(c.Chains, entry)
	c.UpdatedAt = time.Now()
}

func (c *Config) RemoveChain(chainID string) bool {
	for i, entry := range c.Chains {
		if entry.ChainID == chainID {
			c.Chains = append(c.Chains[:i], c.Chains[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

func (c *Config) Chain(chainID string) *ChainEntry {
	for i := range c.Chains {
		if c.Chains[i].ChainID == chainID {
			return &c.Chains[i]
		}
	}
	return nil
}

func (c *Config) AddSeedPeer(addr string) {
	for _, p := range c.SeedPeers {
		if p == addr {
			return
		}
	}
	c.SeedPeers = append(c.SeedPeers, addr)
	c.UpdatedAt = time.Now()
}

func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func FromJSON(data []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}
