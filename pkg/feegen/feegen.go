// Package feegen implements the Fee Payment Generator (spec.md §4.I): for a
// target peer and fee amount, resolve the payment destination, build and
// sign a transaction paying exactly that fee from locked local outputs, and
// release the lock on later failure or timeout. Built on
// pkg/chainadapter.Adapter, grounded on the teacher's
// src/chainadapter/bitcoin transaction-builder/signer pair plus the
// process-wide cs_rpcBlockchainStore lock named in spec.md §5.
package feegen

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/yourusername/xrouter/pkg/chainadapter"
	"github.com/yourusername/xrouter/pkg/registry"
)

// Locker releases a set of previously-locked funding outputs. Implemented by
// pkg/chainadapter/bitcoin.OutputLocker for UTXO chains; account-model chains
// (nonce-based, nothing to unlock) pass a no-op Locker.
type Locker interface {
	Release(ids []string)
}

// storeLock is the process-wide lock held across building, funding and
// signing one fee transaction, so concurrent generators never select the
// same unspent outputs.
var storeLock sync.Mutex

type noopLocker struct{}

func (noopLocker) Release([]string) {}

// NoopLocker is used for account-model currencies that have nothing to lock.
var NoopLocker Locker = noopLocker{}

// Generator builds fee-payment transactions for one currency.
type Generator struct {
	asset      string
	sourceAddr string
	adapter    chainadapter.Adapter
	locker     Locker

	mu      sync.Mutex
	pending map[string][]string // tx hex -> locked outpoint ids, for Release
}

// New constructs a Generator for one currency. sourceAddr is the wallet
// address fee payments are funded from.
func New(asset, sourceAddr string, adapter chainadapter.Adapter, locker Locker) *Generator {
	if locker == nil {
		locker = NoopLocker
	}
	return &Generator{
		asset:      asset,
		sourceAddr: sourceAddr,
		adapter:    adapter,
		locker:     locker,
		pending:    make(map[string][]string),
	}
}

// Generate builds and signs a transaction paying fee to paymentAddress,
// locking its funding outputs (spec.md §4.I steps 1-3), and returns the raw
// signed transaction hex for inclusion in the outgoing request packet.
func (g *Generator) Generate(ctx context.Context, node registry.Node, paymentAddress string, fee float64) (string, error) {
	if paymentAddress == "" {
		paymentAddress = node.PaymentAddress
	}
	if paymentAddress == "" {
		return "", fmt.Errorf("feegen: node %s has no payment address", node.NodeID)
	}
	if fee <= 0 {
		return "", fmt.Errorf("feegen: fee must be positive, got %v", fee)
	}

	amount := toSmallestUnit(fee)
	storeLock.Lock()
	defer storeLock.Unlock()
	unsigned, err := g.adapter.Build(ctx, &chainadapter.TransactionRequest{
		From:         g.sourceAddr,
		To:           paymentAddress,
		Asset:        g.asset,
		Amount:       amount,
		LockUnspents: true,
	})
	if err != nil {
		return "", err
	}

	signed, err := g.adapter.Sign(ctx, unsigned)
	if err != nil {
		g.locker.Release(unsigned.LockedOutpoints)
		return "", err
	}

	txHex := fmt.Sprintf("%x", signed.SerializedTx)
	g.mu.Lock()
	g.pending[txHex] = unsigned.LockedOutpoints
	g.mu.Unlock()
	return txHex, nil
}

// Release unlocks the funding outputs behind a previously generated fee
// transaction, called on non-response (spec.md §4.G step 7) or error reply
// (step 9). Idempotent: releasing an unknown or already-released tx is a
// no-op.
func (g *Generator) Release(txHex string) {
	g.mu.Lock()
	ids, ok := g.pending[txHex]
	if ok {
		delete(g.pending, txHex)
	}
	g.mu.Unlock()
	if ok {
		g.locker.Release(ids)
	}
}

// toSmallestUnit converts a fixed-point currency amount to the chain's
// smallest unit assuming 8 decimal places (satoshi-scale), the precision
// node configs advertise fees in per spec.md §3.
func toSmallestUnit(fee float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(fee), big.NewFloat(1e8))
	out, _ := scaled.Int(nil)
	return out
}
