// Package bitcoin implements chainadapter.Adapter for UTXO-model currencies,
// adapted from the teacher's src/chainadapter/bitcoin package. The builder
// keeps the teacher's largest-first UTXO selection and dust handling
// verbatim in spirit; the adapter wraps it with the output-locking bookkeeping
// spec.md §4.I requires (lockUnspents=true, released on timeout/failure) that
// the teacher's version did not need for its general-purpose wallet use case.
package bitcoin

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/yourusername/xrouter/pkg/chainadapter"
)

// dustThreshold is the minimum economical P2WPKH change output, unchanged
// from the teacher's constant.
const dustThreshold = 546

// UTXO is one spendable output known to the local wallet.
type UTXO struct {
	TxID          string
	Vout          uint32
	Amount        int64 // satoshis
	ScriptPubKey  []byte
	Address       string
	Confirmations int
}

func (u UTXO) ID() string { return fmt.Sprintf("%s:%d", u.TxID, u.Vout) }

// TransactionBuilder constructs unsigned Bitcoin transactions.
type TransactionBuilder struct {
	network *chaincfg.Params
}

func NewTransactionBuilder(network string) (*TransactionBuilder, error) {
	params, err := networkParams(network)
	if err != nil {
		return nil, err
	}
	return &TransactionBuilder{network: params}, nil
}

func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
}

// Build constructs an unsigned transaction paying req.Amount to req.To,
// funded from utxos at feeRate sat/vByte. Any change returns to req.From.
func (tb *TransactionBuilder) Build(ctx context.Context, req *chainadapter.TransactionRequest, utxos []UTXO, feeRate int64) (*chainadapter.UnsignedTransaction, []UTXO, error) {
	if err := tb.validateRequest(req); err != nil {
		return nil, nil, err
	}

	selected, changeAmount, err := tb.selectUTXOs(utxos, req.Amount.Int64(), feeRate)
	if err != nil {
		return nil, nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range selected {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction,
				fmt.Sprintf("invalid utxo txid %s", u.TxID), err)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(txHash, u.Vout), nil, nil)
		if rbf, _ := req.ChainSpecific["rbf_enabled"].(bool); rbf {
			txIn.Sequence = wire.MaxTxInSequenceNum - 2
		}
		tx.AddTxIn(txIn)
	}

	toAddr, err := btcutil.DecodeAddress(req.To, tb.network)
	if err != nil {
		return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress,
			fmt.Sprintf("invalid destination address %s", req.To), err)
	}
	toScript, err := txscript.PayToAddrScript(toAddr)
	if err != nil {
		return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "pay-to-addr script", err)
	}
	tx.AddTxOut(wire.NewTxOut(req.Amount.Int64(), toScript))

	var changeAddress string
	if changeAmount > 0 {
		changeAddress = req.From
		if custom, ok := req.ChainSpecific["change_address"].(string); ok && custom != "" {
			changeAddress = custom
		}
		changeAddr, err := btcutil.DecodeAddress(changeAddress, tb.network)
		if err != nil {
			return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress,
				fmt.Sprintf("invalid change address %s", changeAddress), err)
		}
		changeScript, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "change script", err)
		}
		tx.AddTxOut(wire.NewTxOut(changeAmount, changeScript))
	}

	if req.Memo != "" {
		memo := []byte(req.Memo)
		if len(memo) > 80 {
			return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "memo exceeds 80 bytes", nil)
		}
		memoScript, err := txscript.NullDataScript(memo)
		if err != nil {
			return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "memo script", err)
		}
		tx.AddTxOut(wire.NewTxOut(0, memoScript))
	}

	txSize := tx.SerializeSize()
	fee := int64(txSize) * feeRate

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, nil, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidTransaction, "serialize", err)
	}

	unsigned := &chainadapter.UnsignedTransaction{
		ID:             tx.TxHash().String(),
		ChainID:        "bitcoin",
		From:           req.From,
		To:             req.To,
		Amount:         req.Amount,
		Fee:            big.NewInt(fee),
		SigningPayload: buf.Bytes(),
		HumanReadable:  tb.humanReadable(req, selected, fee, changeAmount, changeAddress),
		ChainSpecific: map[string]interface{}{
			"tx_size":  txSize,
			"fee_rate": feeRate,
		},
		CreatedAt: time.Now(),
	}
	return unsigned, selected, nil
}

func (tb *TransactionBuilder) validateRequest(req *chainadapter.TransactionRequest) error {
	if req.From == "" {
		return chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, "from address required", nil)
	}
	if _, err := btcutil.DecodeAddress(req.From, tb.network); err != nil {
		return chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, fmt.Sprintf("invalid from address %s", req.From), err)
	}
	if req.To == "" {
		return chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, "to address required", nil)
	}
	if _, err := btcutil.DecodeAddress(req.To, tb.network); err != nil {
		return chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAddress, fmt.Sprintf("invalid to address %s", req.To), err)
	}
	if req.Amount == nil || req.Amount.Cmp(big.NewInt(0)) <= 0 {
		return chainadapter.NewNonRetryableError(chainadapter.ErrCodeInvalidAmount, "amount must be positive", nil)
	}
	return nil
}

// selectUTXOs picks inputs largest-first until the payment plus an estimated
// fee is covered, folding sub-dust change into the fee.
func (tb *TransactionBuilder) selectUTXOs(utxos []UTXO, amount, feeRate int64) ([]UTXO, int64, error) {
	estimatedSize := int64(10 + 148*len(utxos) + 34*2)
	estimatedFee := estimatedSize * feeRate
	totalNeeded := amount + estimatedFee

	var selected []UTXO
	var totalSelected int64
	for _, u := range utxos {
		selected = append(selected, u)
		totalSelected += u.Amount
		if totalSelected >= totalNeeded {
			break
		}
	}
	if totalSelected < totalNeeded {
		return nil, 0, chainadapter.NewNonRetryableError(chainadapter.ErrCodeInsufficientFunds,
			fmt.Sprintf("insufficient funds: have %d sat, need %d sat", totalSelected, totalNeeded), nil)
	}

	changeAmount := totalSelected - amount - estimatedFee
	if changeAmount > 0 && changeAmount < dustThreshold {
		changeAmount = 0
	}
	return selected, changeAmount, nil
}

func (tb *TransactionBuilder) humanReadable(req *chainadapter.TransactionRequest, utxos []UTXO, fee, change int64, changeAddr string) string {
	return fmt.Sprintf("pay %s sat %s -> %s, fee %d sat, %d inputs, change %d sat to %s",
		req.Amount.String(), req.From, req.To, fee, len(utxos), change, changeAddr)
}
