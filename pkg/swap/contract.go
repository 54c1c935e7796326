package swap

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/yourusername/xrouter/pkg/rpc"
)

// Selector is a 4-byte function selector, keccak256(signature)[:4], the
// account/contract backend's method identifier (spec.md §4.J).
type Selector [4]byte

func selectorFor(signature string) Selector {
	var s Selector
	copy(s[:], gethcrypto.Keccak256([]byte(signature))[:4])
	return s
}

var (
	SelectorInitiate = selectorFor("initiate(bytes20,address,uint256)")
	SelectorRespond  = selectorFor("respond(bytes20,address,uint256)")
	SelectorRefund   = selectorFor("refund(bytes20)")
	SelectorRedeem   = selectorFor("redeem(bytes20,bytes)")
)

// EventName is one of the four swap lifecycle events, each keyed by the
// 20-byte hashed secret.
type EventName string

const (
	EventInitiated EventName = "Initiated"
	EventResponded EventName = "Responded"
	EventRefunded  EventName = "Refunded"
	EventRedeemed  EventName = "Redeemed"
)

// Event is a decoded contract log entry. Addresses and values are kept as
// their raw 64-hex-character (32-byte) chunks: spec.md §4.J requires a party
// match to be an exact hex comparison, not a numeric one.
type Event struct {
	Name            EventName
	HashedSecretHex string // 40 hex chars (20 bytes)
	CounterpartyHex string // 64-hex chunk holding an address
	ValueHex        string // 64-hex chunk holding a uint256
	BlockNumber     uint64
}

// Matches reports whether evt's counterparty address and value line up with
// params, depending on which side of the swap is checking.
func (evt Event) Matches(params Params) bool {
	if normalizeHex(evt.HashedSecretHex) != normalizeHex(hex.EncodeToString(params.HashedSecret[:])) {
		return false
	}
	var wantAddr string
	switch evt.Name {
	case EventResponded:
		wantAddr = params.ResponderAddress
	case EventInitiated:
		wantAddr = params.InitiatorAddress
	default:
		return true
	}
	// params.Value is decimal; compare it in hex against the event chunk.
	wantValue := params.Value
	if n, ok := new(big.Int).SetString(params.Value, 10); ok {
		wantValue = n.Text(16)
	}
	return normalizeHex(evt.CounterpartyHex) == normalizeHex(wantAddr) &&
		normalizeHex(evt.ValueHex) == normalizeHex(wantValue)
}

func normalizeHex(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return strings.TrimLeft(s, "0")
}

// ContractBackend issues the four swap methods against an account-model
// chain and scans its logs for the four swap events.
type ContractBackend interface {
	Initiate(ctx context.Context, hashedSecret HashedSecret, responder string, value string) (txHash string, err error)
	Respond(ctx context.Context, hashedSecret HashedSecret, responder string, value string) (txHash string, err error)
	Refund(ctx context.Context, hashedSecret HashedSecret) (txHash string, err error)
	Redeem(ctx context.Context, hashedSecret HashedSecret, preimage [32]byte) (txHash string, err error)
	ScanEvents(ctx context.Context, contractAddress string, fromBlock uint64) ([]Event, uint64, error)
}

// RPCContractBackend implements ContractBackend directly over a pkg/rpc
// client talking to a Contract RPC Adapter endpoint, issuing sendTransaction
// with ABI-encoded calldata built from the 4-byte selectors above.
type RPCContractBackend struct {
	client          rpc.Client
	contractAddress string
	senderAddress   string
}

func NewRPCContractBackend(client rpc.Client, contractAddress, senderAddress string) *RPCContractBackend {
	return &RPCContractBackend{client: client, contractAddress: contractAddress, senderAddress: senderAddress}
}

func (b *RPCContractBackend) call(ctx context.Context, data []byte) (string, error) {
	raw, err := b.client.Call(ctx, "sendTransaction", []interface{}{
		b.senderAddress, b.contractAddress, "0x0", fmt.Sprintf("0x%x", data),
	})
	if err != nil {
		return "", err
	}
	var txHash string
	if err := rpcUnmarshal(raw, &txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

func (b *RPCContractBackend) Initiate(ctx context.Context, hashedSecret HashedSecret, responder, value string) (string, error) {
	return b.call(ctx, encodeCall(SelectorInitiate, hashedSecret[:], hexToBytes32(responder), decimalToBytes32(value)))
}

func (b *RPCContractBackend) Respond(ctx context.Context, hashedSecret HashedSecret, responder, value string) (string, error) {
	return b.call(ctx, encodeCall(SelectorRespond, hashedSecret[:], hexToBytes32(responder), decimalToBytes32(value)))
}

func (b *RPCContractBackend) Refund(ctx context.Context, hashedSecret HashedSecret) (string, error) {
	return b.call(ctx, encodeCall(SelectorRefund, hashedSecret[:]))
}

func (b *RPCContractBackend) Redeem(ctx context.Context, hashedSecret HashedSecret, preimage [32]byte) (string, error) {
	return b.call(ctx, encodeCall(SelectorRedeem, hashedSecret[:], preimage[:]))
}

// ScanEvents fetches logs for the contract since fromBlock and decodes them
// into Events, returning the next cursor to resume from.
func (b *RPCContractBackend) ScanEvents(ctx context.Context, contractAddress string, fromBlock uint64) ([]Event, uint64, error) {
	raw, err := b.client.Call(ctx, "getLogs", []interface{}{contractAddress, fmt.Sprintf("0x%x", fromBlock), ""})
	if err != nil {
		return nil, fromBlock, err
	}
	var logs []struct {
		Selector string `json:"event_selector"`
		Data     string `json:"data"`
		Block    string `json:"block_number"`
	}
	if err := rpcUnmarshal(raw, &logs); err != nil {
		return nil, fromBlock, err
	}

	next := fromBlock
	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		evt, blockNum, ok := decodeEvent(l.Selector, l.Data, l.Block)
		if !ok {
			continue
		}
		events = append(events, evt)
		if blockNum+1 > next {
			next = blockNum + 1
		}
	}
	return events, next, nil
}

// Cursor tracks the monotonically increasing from_block pointer an event
// scanner resumes from (spec.md §4.J: "set at startup to the current head").
type Cursor struct {
	mu   sync.Mutex
	next uint64
}

func NewCursor(startBlock uint64) *Cursor { return &Cursor{next: startBlock} }

func (c *Cursor) Get() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Advance moves the cursor forward, ignoring any candidate at or behind the
// current position so the cursor never regresses.
func (c *Cursor) Advance(candidate uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if candidate > c.next {
		c.next = candidate
	}
}

func rpcUnmarshal(raw []byte, v interface{}) error { return jsonUnmarshalRPC(raw, v) }
