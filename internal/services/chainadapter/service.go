// Package chainadapter caches one pkg/chainadapter.Adapter per chain and
// routes fee-payment and swap-funding calls to it by chain ID. Adapted from
// the teacher's ChainAdapter instance cache: same double-checked-lock
// get-or-create shape, narrowed to the node's own two adapter families and
// wired to pkg/rpc.HTTPClient and the node's internal/services/keystore
// wallet instead of a per-call raw signer.
package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/yourusername/xrouter/internal/services/keystore"
	"github.com/yourusername/xrouter/pkg/chainadapter"
	"github.com/yourusername/xrouter/pkg/chainadapter/bitcoin"
	"github.com/yourusername/xrouter/pkg/chainadapter/ethereum"
	"github.com/yourusername/xrouter/pkg/feegen"
	"github.com/yourusername/xrouter/pkg/rpc"
)

// ChainConfig names one chain's RPC endpoints and network parameters, as
// built from the node's app.Config chain entries.
type ChainConfig struct {
	ChainID   string
	Endpoints []string
	Network   string // "mainnet", "testnet3", "regtest" for bitcoin; unused for ethereum
	EVMChain  int64  // EIP-155 chain ID, ethereum adapters only
}

// Registry caches chainadapter.Adapter instances for the node's configured
// chains, keyed by chain ID. All methods are thread-safe; adapters are
// immutable once constructed.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]chainadapter.Adapter
	lockers  map[string]*bitcoin.OutputLocker
	configs  map[string]ChainConfig
	wallet   *keystore.KeyStore
}

func NewRegistry(wallet *keystore.KeyStore, configs []ChainConfig) *Registry {
	cfgByID := make(map[string]ChainConfig, len(configs))
	for _, c := range configs {
		cfgByID[c.ChainID] = c
	}
	return &Registry{
		adapters: make(map[string]chainadapter.Adapter),
		lockers:  make(map[string]*bitcoin.OutputLocker),
		configs:  cfgByID,
		wallet:   wallet,
	}
}

// FeeLocker returns the Locker a feegen.Generator should use to release
// funding outputs left locked by a failed or abandoned fee payment on
// chainID: the chain's own OutputLocker for UTXO chains, feegen.NoopLocker
// for account-model chains that never lock anything.
func (r *Registry) FeeLocker(chainID string) feegen.Locker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.lockers[chainID]; ok {
		return l
	}
	return feegen.NoopLocker
}

// Adapter returns the cached chainadapter.Adapter for chainID, constructing
// it on first use.
func (r *Registry) Adapter(chainID string) (chainadapter.Adapter, error) {
	r.mu.RLock()
	if a, ok := r.adapters[chainID]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[chainID]; ok {
		return a, nil
	}

	cfg, ok := r.configs[chainID]
	if !ok {
		return nil, fmt.Errorf("chainadapter: no configuration for chain %q", chainID)
	}

	client, err := rpc.NewHTTPClient(cfg.Endpoints, 30*time.Second, nil)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: build rpc client for %s: %w", chainID, err)
	}

	var adapter chainadapter.Adapter
	switch {
	case cfg.EVMChain != 0:
		adapter = ethereum.New(cfg.EVMChain, ethKeySource{r.wallet}, client)
	default:
		locker := bitcoin.NewOutputLocker()
		adapter, err = bitcoin.New(cfg.ChainID, cfg.Network, btcWallet{keystore: r.wallet, client: client}, client, locker)
		if err != nil {
			return nil, fmt.Errorf("chainadapter: build bitcoin adapter for %s: %w", chainID, err)
		}
		r.lockers[chainID] = locker
	}

	r.adapters[chainID] = adapter
	return adapter, nil
}

// ethKeySource adapts keystore.KeyStore's ethereum-specific method name onto
// pkg/chainadapter/ethereum.KeySource's single-method shape.
type ethKeySource struct {
	ks *keystore.KeyStore
}

func (e ethKeySource) PrivateKeyFor(address string) (*ecdsa.PrivateKey, error) {
	return e.ks.PrivateKeyForEth(address)
}

// btcWallet implements pkg/chainadapter/bitcoin.Wallet by pairing the node's
// keystore for signing with the chain's own JSON-RPC endpoint for UTXO
// lookups, grounded on the teacher's RPCHelper.ListUnspent
// (src/chainadapter/bitcoin/rpc.go).
type btcWallet struct {
	keystore *keystore.KeyStore
	client   rpc.Client
}

func (w btcWallet) PrivateKeyFor(address string) (*btcec.PrivateKey, error) {
	return w.keystore.PrivateKeyFor(address)
}

func (w btcWallet) ListUnspent(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	raw, err := w.client.Call(ctx, "listunspent", []interface{}{0, 9999999, []string{address}})
	if err != nil {
		return nil, fmt.Errorf("chainadapter: listunspent: %w", err)
	}
	var results []struct {
		TxID          string  `json:"txid"`
		Vout          uint32  `json:"vout"`
		Address       string  `json:"address"`
		ScriptPubKey  string  `json:"scriptPubKey"`
		Amount        float64 `json:"amount"`
		Confirmations int     `json:"confirmations"`
		Spendable     bool    `json:"spendable"`
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("chainadapter: parse listunspent result: %w", err)
	}
	utxos := make([]bitcoin.UTXO, 0, len(results))
	for _, u := range results {
		if !u.Spendable {
			continue
		}
		utxos = append(utxos, bitcoin.UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Amount:        int64(u.Amount * 1e8),
			Address:       u.Address,
			Confirmations: u.Confirmations,
		})
	}
	return utxos, nil
}

// Build constructs an unsigned transaction on the named chain.
func (r *Registry) Build(ctx context.Context, chainID string, req *chainadapter.TransactionRequest) (*chainadapter.UnsignedTransaction, error) {
	adapter, err := r.Adapter(chainID)
	if err != nil {
		return nil, err
	}
	return adapter.Build(ctx, req)
}

// Broadcast submits a signed transaction on the named chain.
func (r *Registry) Broadcast(ctx context.Context, chainID string, signed *chainadapter.SignedTransaction) (*chainadapter.BroadcastReceipt, error) {
	adapter, err := r.Adapter(chainID)
	if err != nil {
		return nil, err
	}
	return adapter.Broadcast(ctx, signed)
}

// QueryStatus reports a transaction's confirmation status on the named chain.
func (r *Registry) QueryStatus(ctx context.Context, chainID string, txHash string) (*chainadapter.TransactionStatus, error) {
	adapter, err := r.Adapter(chainID)
	if err != nil {
		return nil, err
	}
	return adapter.QueryStatus(ctx, txHash)
}
