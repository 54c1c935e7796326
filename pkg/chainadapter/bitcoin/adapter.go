package bitcoin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/yourusername/xrouter/pkg/chainadapter"
	"github.com/yourusername/xrouter/pkg/rpc"
)

// Wallet is the local signing/funding backend an Adapter is built on. It
// plays the role of the teacher's combined RPCHelper+BTCDSigner: listing
// spendable outputs and holding the keys that can spend them.
type Wallet interface {
	ListUnspent(ctx context.Context, address string) ([]UTXO, error)
	PrivateKeyFor(address string) (*btcec.PrivateKey, error)
}

// OutputLocker reserves UTXOs across concurrent Build calls so two fee
// payments never select the same coin (spec.md §4.I step 2, grounded on the
// process-wide cs_rpcBlockchainStore lock of spec.md §5).
type OutputLocker struct {
	mu     sync.Mutex
	locked map[string]bool
}

func NewOutputLocker() *OutputLocker {
	return &OutputLocker{locked: make(map[string]bool)}
}

func (l *OutputLocker) filterAvailable(utxos []UTXO) []UTXO {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		if !l.locked[u.ID()] {
			out = append(out, u)
		}
	}
	return out
}

func (l *OutputLocker) lock(utxos []UTXO) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range utxos {
		l.locked[u.ID()] = true
	}
}

// Release unlocks previously locked outputs, e.g. after a fee payment's
// query times out or its reply is an error (spec.md §4.I, §4.G steps 7/9).
func (l *OutputLocker) Release(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.locked, id)
	}
}

// Adapter implements chainadapter.Adapter for a UTXO-model currency.
type Adapter struct {
	chainID string
	network string
	params  *chaincfg.Params
	wallet  Wallet
	rpc     rpc.Client
	builder *TransactionBuilder
	locker  *OutputLocker
	buildMu sync.Mutex // serializes select-then-lock in Build

	feeRateSatPerVByte int64
}

func New(chainID, network string, wallet Wallet, client rpc.Client, locker *OutputLocker) (*Adapter, error) {
	params, err := networkParams(network)
	if err != nil {
		return nil, err
	}
	builder, err := NewTransactionBuilder(network)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		chainID:            chainID,
		network:            network,
		params:             params,
		wallet:             wallet,
		rpc:                client,
		builder:            builder,
		locker:             locker,
		feeRateSatPerVByte: 10,
	}, nil
}

func (a *Adapter) ChainID() string { return a.chainID }

func (a *Adapter) Capabilities() chainadapter.Capabilities {
	return chainadapter.Capabilities{
		ChainID:          a.chainID,
		IsAccountModel:   false,
		SupportsMemo:     true,
		SupportsRBF:      true,
		MinConfirmations: 6,
	}
}

// Build selects and locks funding outputs, then produces an unsigned
// transaction. Selection happens under the locker so two concurrent Build
// calls never pick the same coin.
func (a *Adapter) Build(ctx context.Context, req *chainadapter.TransactionRequest) (*chainadapter.UnsignedTransaction, error) {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()
	all, err := a.wallet.ListUnspent(ctx, req.From)
	if err != nil {
		return nil, chainadapter.NewRetryableError(chainadapter.ErrCodeRPCUnavailable, "listunspent failed", err)
	}
	available := a.locker.filterAvailable(all)
	if len(available) == 0 {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInsufficientFunds,
			fmt.Sprintf("no unlocked utxos for %s", req.From), nil)
	}

	unsigned, selected, err := a.builder.Build(ctx, req, available, a.feeRateSatPerVByte)
	if err != nil {
		return nil, err
	}
	unsigned.ChainID = a.chainID

	if req.LockUnspents {
		a.locker.lock(selected)
		ids := make([]string, 0, len(selected))
		for _, u := range selected {
			ids = append(ids, u.ID())
		}
		unsigned.LockedOutpoints = ids
	}
	return unsigned, nil
}

// Sign signs every input with the wallet key controlling unsigned.From,
// using P2WPKH witness signatures, mirroring the teacher's BTCDSigner but
// producing a fully serialized, broadcastable transaction rather than a
// detached signature blob.
func (a *Adapter) Sign(ctx context.Context, unsigned *chainadapter.UnsignedTransaction) (*chainadapter.SignedTransaction, error) {
	priv, err := a.wallet.PrivateKeyFor(unsigned.From)
	if err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, "no key for from address", err)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytesReader(unsigned.SigningPayload)); err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "deserialize signing payload", err)
	}

	fromAddr, err := btcutil.DecodeAddress(unsigned.From, a.params)
	if err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, "decode from address", err)
	}
	pkScript, err := txscript.PayToAddrScript(fromAddr)
	if err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "pay-to-addr script for from", err)
	}

	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(pkScript, unsigned.Amount.Int64())
	sigHashes := txscript.NewTxSigHashes(&tx, prevOutFetcher)

	for i, txIn := range tx.TxIn {
		sig, err := txscript.RawTxInWitnessSignature(&tx, sigHashes, i, unsigned.Amount.Int64(), pkScript, txscript.SigHashAll, priv)
		if err != nil {
			return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "sign input", err)
		}
		txIn.Witness = wire.TxWitness{sig, priv.PubKey().SerializeCompressed()}
	}

	serialized, err := serializeTx(&tx)
	if err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "serialize signed tx", err)
	}

	return &chainadapter.SignedTransaction{
		UnsignedTx:   unsigned,
		TxHash:       tx.TxHash().String(),
		SerializedTx: serialized,
		SignedAt:     time.Now(),
	}, nil
}

func (a *Adapter) Broadcast(ctx context.Context, signed *chainadapter.SignedTransaction) (*chainadapter.BroadcastReceipt, error) {
	hexTx := fmt.Sprintf("%x", signed.SerializedTx)
	if _, err := a.rpc.Call(ctx, "sendrawtransaction", []interface{}{hexTx}); err != nil {
		return nil, chainadapter.NewRetryableError(chainadapter.ErrCodeRPCUnavailable, "sendrawtransaction failed", err)
	}
	return &chainadapter.BroadcastReceipt{
		TxHash:      signed.TxHash,
		ChainID:     a.chainID,
		SubmittedAt: time.Now(),
	}, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, txHash string) (*chainadapter.TransactionStatus, error) {
	raw, err := a.rpc.Call(ctx, "gettransaction", []interface{}{txHash})
	if err != nil {
		return nil, chainadapter.NewRetryableError(chainadapter.ErrCodeRPCUnavailable, "gettransaction failed", err)
	}
	var result struct {
		Confirmations int `json:"confirmations"`
	}
	if err := unmarshal(raw, &result); err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeTxNotFound, "tx not found", err)
	}
	status := chainadapter.TxStatusPending
	switch {
	case result.Confirmations >= 6:
		status = chainadapter.TxStatusFinalized
	case result.Confirmations > 0:
		status = chainadapter.TxStatusConfirmed
	}
	return &chainadapter.TransactionStatus{
		TxHash:        txHash,
		Status:        status,
		Confirmations: result.Confirmations,
		UpdatedAt:     time.Now(),
	}, nil
}
