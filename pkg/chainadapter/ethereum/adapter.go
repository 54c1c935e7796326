// Package ethereum implements chainadapter.Adapter for account/contract-model
// currencies, adapted from the teacher's src/chainadapter/ethereum package.
// It backs both plain fee payments (spec.md §4.I) and the account-backend leg
// of the atomic-swap contract (spec.md §4.J) via go-ethereum's signer and RPC
// types, condensed to EIP-1559 dynamic-fee transactions only (the teacher's
// legacy-transaction fallback path is dropped).
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yourusername/xrouter/pkg/chainadapter"
	"github.com/yourusername/xrouter/pkg/rpc"
)

// KeySource supplies the signing key that controls a given account address.
type KeySource interface {
	PrivateKeyFor(address string) (*ecdsa.PrivateKey, error)
}

// Adapter implements chainadapter.Adapter over an Ethereum-compatible
// JSON-RPC endpoint.
type Adapter struct {
	chainID *big.Int
	keys    KeySource
	client  rpc.Client
}

func New(chainID int64, keys KeySource, client rpc.Client) *Adapter {
	return &Adapter{chainID: big.NewInt(chainID), keys: keys, client: client}
}

func (a *Adapter) ChainID() string { return fmt.Sprintf("ethereum-%d", a.chainID.Int64()) }

func (a *Adapter) Capabilities() chainadapter.Capabilities {
	return chainadapter.Capabilities{
		ChainID:          a.ChainID(),
		IsAccountModel:   true,
		SupportsMemo:     true,
		SupportsRBF:      false,
		MinConfirmations: 12,
	}
}

func (a *Adapter) Build(ctx context.Context, req *chainadapter.TransactionRequest) (*chainadapter.UnsignedTransaction, error) {
	if !common.IsHexAddress(req.To) {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, fmt.Sprintf("invalid to address %s", req.To), nil)
	}
	if !common.IsHexAddress(req.From) {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, fmt.Sprintf("invalid from address %s", req.From), nil)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAmount, "amount must be positive", nil)
	}

	nonce, err := a.nonceFor(ctx, req.From)
	if err != nil {
		return nil, err
	}
	tipCap, feeCap, err := a.suggestedFees(ctx)
	if err != nil {
		return nil, err
	}

	const gasLimit = 21000
	toAddr := common.HexToAddress(req.To)
	var data []byte
	if req.Memo != "" {
		data = []byte(req.Memo)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
		Gas:       gasLimit,
		To:        &toAddr,
		Value:     req.Amount,
		Data:      data,
	})

	signer := types.LatestSignerForChainID(a.chainID)
	hash := signer.Hash(tx)
	fee := new(big.Int).Mul(feeCap, big.NewInt(gasLimit))

	return &chainadapter.UnsignedTransaction{
		ID:             hash.Hex(),
		ChainID:        a.ChainID(),
		From:           req.From,
		To:             req.To,
		Amount:         req.Amount,
		Fee:            fee,
		SigningPayload: hash.Bytes(),
		HumanReadable:  fmt.Sprintf("pay %s wei %s -> %s, nonce %d, fee cap %s", req.Amount, req.From, req.To, nonce, feeCap),
		ChainSpecific: map[string]interface{}{
			"nonce":   nonce,
			"tx_type": "dynamic-fee",
		},
		CreatedAt: time.Now(),
	}, nil
}

func (a *Adapter) Sign(ctx context.Context, unsigned *chainadapter.UnsignedTransaction) (*chainadapter.SignedTransaction, error) {
	priv, err := a.keys.PrivateKeyFor(unsigned.From)
	if err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, "no key for from address", err)
	}
	nonce, _ := unsigned.ChainSpecific["nonce"].(uint64)
	toAddr := common.HexToAddress(unsigned.To)

	tipCap, feeCap, err := a.suggestedFees(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
		Gas:       21000,
		To:        &toAddr,
		Value:     unsigned.Amount,
	})
	signer := types.LatestSignerForChainID(a.chainID)
	signedTx, err := types.SignTx(tx, signer, priv)
	if err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "sign transaction", err)
	}
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "marshal signed tx", err)
	}

	return &chainadapter.SignedTransaction{
		UnsignedTx:   unsigned,
		TxHash:       signedTx.Hash().Hex(),
		SerializedTx: raw,
		SignedAt:     time.Now(),
	}, nil
}

func (a *Adapter) Broadcast(ctx context.Context, signed *chainadapter.SignedTransaction) (*chainadapter.BroadcastReceipt, error) {
	hexTx := fmt.Sprintf("0x%x", signed.SerializedTx)
	if _, err := a.client.Call(ctx, "eth_sendRawTransaction", []interface{}{hexTx}); err != nil {
		return nil, chainadapter.NewRetryableError(chainadapter.ErrCodeRPCUnavailable, "eth_sendRawTransaction failed", err)
	}
	return &chainadapter.BroadcastReceipt{TxHash: signed.TxHash, ChainID: a.ChainID(), SubmittedAt: time.Now()}, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, txHash string) (*chainadapter.TransactionStatus, error) {
	raw, err := a.client.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, chainadapter.NewRetryableError(chainadapter.ErrCodeRPCUnavailable, "eth_getTransactionReceipt failed", err)
	}
	var receipt struct {
		BlockNumber string `json:"blockNumber"`
		Status      string `json:"status"`
	}
	if err := jsonUnmarshal(raw, &receipt); err != nil || receipt.BlockNumber == "" {
		return &chainadapter.TransactionStatus{TxHash: txHash, Status: chainadapter.TxStatusPending, UpdatedAt: time.Now()}, nil
	}
	status := chainadapter.TxStatusConfirmed
	if receipt.Status == "0x0" {
		status = chainadapter.TxStatusFailed
	}
	return &chainadapter.TransactionStatus{TxHash: txHash, Status: status, UpdatedAt: time.Now()}, nil
}

func (a *Adapter) nonceFor(ctx context.Context, address string) (uint64, error) {
	raw, err := a.client.Call(ctx, "eth_getTransactionCount", []interface{}{address, "pending"})
	if err != nil {
		return 0, chainadapter.NewRetryableError(chainadapter.ErrCodeRPCUnavailable, "eth_getTransactionCount failed", err)
	}
	var hexNonce string
	if err := jsonUnmarshal(raw, &hexNonce); err != nil {
		return 0, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "malformed nonce response", err)
	}
	n := new(big.Int)
	if _, ok := n.SetString(trim0x(hexNonce), 16); !ok {
		return 0, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "unparseable nonce", nil)
	}
	return n.Uint64(), nil
}

func (a *Adapter) suggestedFees(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	raw, callErr := a.client.Call(ctx, "eth_gasPrice", nil)
	if callErr != nil {
		return nil, nil, chainadapter.NewRetryableError(chainadapter.ErrCodeRPCUnavailable, "eth_gasPrice failed", callErr)
	}
	var hexPrice string
	if err := jsonUnmarshal(raw, &hexPrice); err != nil {
		return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "malformed gas price response", err)
	}
	price := new(big.Int)
	if _, ok := price.SetString(trim0x(hexPrice), 16); !ok {
		return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "unparseable gas price", nil)
	}
	tip := new(big.Int).Div(price, big.NewInt(10)) // 10% of gas price as a priority tip
	cap := new(big.Int).Add(price, tip)
	return tip, cap, nil
}

func trim0x(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
