// Package chainadapter defines the chain-agnostic transaction interface used
// by the Fee Payment Generator (spec.md §4.I) and the Atomic-Swap state
// machine (spec.md §4.J). It is adapted from the teacher's
// src/chainadapter/adapter.go: the original interface covered arbitrary
// wallet transfers, here it is narrowed to the two shapes XRouter actually
// constructs — a fee payment to a single destination and an HTLC-funding
// spend — while keeping the same error classification scheme
// (src/chainadapter/error.go) so additional chains can be dropped in the
// same way the teacher's Bitcoin/Ethereum adapters are. The teacher's
// standalone EstimateFee method is not part of this interface; Build returns
// the fee.
package chainadapter

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// Adapter is the unified interface for building, signing, and broadcasting
// a chain transaction, implemented once per supported currency.
//
// Implementations MUST be safe for concurrent use and MUST wrap every
// returned error in *Error.
type Adapter interface {
	// ChainID returns the chain identifier this adapter serves, e.g.
	// "ethereum-1".
	ChainID() string

	Capabilities() Capabilities

	// Build constructs an unsigned transaction from a standardized request,
	// selecting and locking funding outputs as needed. Deterministic for a
	// given request and UTXO set.
	Build(ctx context.Context, req *TransactionRequest) (*UnsignedTransaction, error)

	// Sign signs an unsigned transaction with the adapter's configured key.
	Sign(ctx context.Context, unsigned *UnsignedTransaction) (*SignedTransaction, error)

	// Broadcast submits a signed transaction and returns its hash. MUST be
	// idempotent: broadcasting the same transaction twice returns the same
	// hash rather than erroring.
	Broadcast(ctx context.Context, signed *SignedTransaction) (*BroadcastReceipt, error)

	// QueryStatus retrieves the current confirmation status of a previously
	// broadcast transaction.
	QueryStatus(ctx context.Context, txHash string) (*TransactionStatus, error)
}

// TransactionRequest is a chain-agnostic description of a single payment.
type TransactionRequest struct {
	From     string
	To       string
	Asset    string
	Amount   *big.Int // smallest unit (satoshi, wei)
	Memo     string
	FeeSpeed FeeSpeed

	// LockUnspents marks the funding outputs selected for this request as
	// reserved so a concurrent Build cannot select them too (spec.md §4.I
	// step 2).
	LockUnspents bool

	ChainSpecific map[string]interface{}
}

type FeeSpeed string

const (
	FeeSpeedSlow   FeeSpeed = "slow"
	FeeSpeedNormal FeeSpeed = "normal"
	FeeSpeedFast   FeeSpeed = "fast"
)

// UnsignedTransaction is ready for signing.
type UnsignedTransaction struct {
	ID             string
	ChainID        string
	From           string
	To             string
	Amount         *big.Int
	Fee            *big.Int
	SigningPayload []byte
	HumanReadable  string

	// LockedOutpoints names the funding outputs reserved while this
	// transaction is outstanding, released via Adapter-specific bookkeeping
	// on failure, timeout, or confirmation.
	LockedOutpoints []string

	ChainSpecific map[string]interface{}
	CreatedAt     time.Time
}

// SignedTransaction is ready for broadcast.
type SignedTransaction struct {
	UnsignedTx   *UnsignedTransaction
	TxHash       string
	SerializedTx []byte
	SignedAt     time.Time
}

// BroadcastReceipt is the result of a successful Broadcast.
type BroadcastReceipt struct {
	TxHash        string
	ChainID       string
	SubmittedAt   time.Time
	InitialStatus *TransactionStatus
}

// TransactionStatus reports confirmation depth for a broadcast transaction.
type TransactionStatus struct {
	TxHash        string
	Status        TxStatus
	Confirmations int
	BlockHeight   *uint64
	UpdatedAt     time.Time
}

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFinalized TxStatus = "finalized"
	TxStatusFailed    TxStatus = "failed"
)

// Capabilities advertises what an adapter supports, used by the swap state
// machine to decide between the UTXO-HTLC and contract-event code paths.
type Capabilities struct {
	ChainID          string
	IsAccountModel   bool // false: UTXO chain, true: account/contract chain
	SupportsMemo     bool
	SupportsRBF      bool
	MinConfirmations int
}

// ErrorClassification categorizes chain errors for the caller's retry logic,
// carried over unchanged from the teacher's chainadapter.ErrorClassification.
type ErrorClassification int

const (
	Retryable ErrorClassification = iota
	NonRetryable
	UserIntervention
)

func (ec ErrorClassification) String() string {
	switch ec {
	case Retryable:
		return "retryable"
	case NonRetryable:
		return "non-retryable"
	case UserIntervention:
		return "user-intervention"
	default:
		return "unknown"
	}
}

// Error is the classified error type every Adapter method must return.
type Error struct {
	Code           string
	Message        string
	Classification ErrorClassification
	Cause          error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

const (
	ErrCodeRPCUnavailable     = "ERR_RPC_UNAVAILABLE"
	ErrCodeInvalidAddress     = "ERR_INVALID_ADDRESS"
	ErrCodeInvalidAmount      = "ERR_INVALID_AMOUNT"
	ErrCodeUnsupportedAsset   = "ERR_UNSUPPORTED_ASSET"
	ErrCodeInsufficientFunds  = "ERR_INSUFFICIENT_FUNDS"
	ErrCodeInvalidTransaction = "ERR_INVALID_TRANSACTION"
	ErrCodeTxNotFound         = "ERR_TX_NOT_FOUND"
)

func NewRetryableError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Classification: Retryable, Cause: cause}
}

func NewNonRetryableError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Classification: NonRetryable, Cause: cause}
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Classification == Retryable
}
