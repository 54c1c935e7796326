// Package chainrpc implements the Contract RPC Adapters of spec.md §4.K: the
// fixed set of account/contract-chain queries XRouter's wallet commands
// dispatch to (getAccounts, getBalance, sendTransaction, ...), with addresses
// and integers encoded as 0x-prefixed minimal hex and responses validated by
// JSON type before decoding. Grounded on the teacher's rpc.HTTPRPCClient
// (src/chainadapter/rpc/http.go, adapted into pkg/rpc) for the transport and
// on src/chainadapter/ethereum/rpc.go's response-shape checks.
package chainrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/yourusername/xrouter/pkg/rpc"
)

// NetVersion is the coarse network classification getNetVersion reports.
type NetVersion string

const (
	NetMainnet NetVersion = "mainnet"
	NetTestnet NetVersion = "testnet"
)

// LogEntry is one (event_selector, data) pair returned by getLogs.
type LogEntry struct {
	EventSelector string
	Data          string
}

// Adapter exposes the fixed Contract RPC Adapter surface over a generic
// JSON-RPC backend.
type Adapter struct {
	client     rpc.Client
	netVersion NetVersion
}

func New(client rpc.Client, netVersion NetVersion) *Adapter {
	return &Adapter{client: client, netVersion: netVersion}
}

func (a *Adapter) GetAccounts(ctx context.Context) ([]string, error) {
	raw, err := a.client.Call(ctx, "eth_accounts", []interface{}{})
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := expectArray(raw, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (a *Adapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	raw, err := a.client.Call(ctx, "eth_getBalance", []interface{}{HexAddress(address), "latest"})
	if err != nil {
		return nil, err
	}
	var hexVal string
	if err := expectString(raw, &hexVal); err != nil {
		return nil, err
	}
	return parseHexUint256(hexVal)
}

func (a *Adapter) SendTransaction(ctx context.Context, from, to string, gas uint64, value *big.Int, data []byte) (string, error) {
	raw, err := a.client.Call(ctx, "eth_sendTransaction", []interface{}{map[string]interface{}{
		"from":  HexAddress(from),
		"to":    HexAddress(to),
		"gas":   HexUint(gas),
		"value": HexBig(value),
		"data":  HexBytes(data),
	}})
	if err != nil {
		return "", err
	}
	var txHash string
	if err := expectString(raw, &txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

// GetTransactionByHash returns the block height a transaction was mined at.
func (a *Adapter) GetTransactionByHash(ctx context.Context, hash string) (uint64, error) {
	raw, err := a.client.Call(ctx, "eth_getTransactionByHash", []interface{}{hash})
	if err != nil {
		return 0, err
	}
	var tx struct {
		BlockNumber string `json:"blockNumber"`
	}
	if err := expectObject(raw, &tx); err != nil {
		return 0, err
	}
	if tx.BlockNumber == "" {
		return 0, fmt.Errorf("chainrpc: transaction %s not yet mined", hash)
	}
	n, err := parseHexUint256(tx.BlockNumber)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func (a *Adapter) GetBlockNumber(ctx context.Context) (*big.Int, error) {
	raw, err := a.client.Call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return nil, err
	}
	var hexVal string
	if err := expectString(raw, &hexVal); err != nil {
		return nil, err
	}
	return parseHexUint256(hexVal)
}

func (a *Adapter) GetNetVersion(ctx context.Context) (NetVersion, error) {
	return a.netVersion, nil
}

func (a *Adapter) GetLastBlockTime(ctx context.Context) (*big.Int, error) {
	raw, err := a.client.Call(ctx, "eth_getBlockByNumber", []interface{}{"latest", false})
	if err != nil {
		return nil, err
	}
	var block struct {
		Timestamp string `json:"timestamp"`
	}
	if err := expectObject(raw, &block); err != nil {
		return nil, err
	}
	return parseHexUint256(block.Timestamp)
}

func (a *Adapter) GetGasPrice(ctx context.Context) (*big.Int, error) {
	raw, err := a.client.Call(ctx, "eth_gasPrice", []interface{}{})
	if err != nil {
		return nil, err
	}
	var hexVal string
	if err := expectString(raw, &hexVal); err != nil {
		return nil, err
	}
	return parseHexUint256(hexVal)
}

func (a *Adapter) GetEstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (*big.Int, error) {
	raw, err := a.client.Call(ctx, "eth_estimateGas", []interface{}{map[string]interface{}{
		"from":  HexAddress(from),
		"to":    HexAddress(to),
		"value": HexBig(value),
		"data":  HexBytes(data),
	}})
	if err != nil {
		return nil, err
	}
	var hexVal string
	if err := expectString(raw, &hexVal); err != nil {
		return nil, err
	}
	return parseHexUint256(hexVal)
}

func (a *Adapter) GetLogs(ctx context.Context, address string, fromBlock uint64, topic string) ([]LogEntry, error) {
	raw, err := a.client.Call(ctx, "eth_getLogs", []interface{}{map[string]interface{}{
		"address":   HexAddress(address),
		"fromBlock": HexUint(fromBlock),
		"topics":    []string{topic},
	}})
	if err != nil {
		return nil, err
	}
	var logs []struct {
		Topics []string `json:"topics"`
		Data   string   `json:"data"`
	}
	if err := expectArray(raw, &logs); err != nil {
		return nil, err
	}
	out := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		selector := ""
		if len(l.Topics) > 0 {
			selector = l.Topics[0]
		}
		out = append(out, LogEntry{EventSelector: selector, Data: l.Data})
	}
	return out, nil
}

// HexAddress, HexUint, HexBig, HexBytes implement spec.md §4.K's encoding
// rule: addresses and large integers as 0x-prefixed minimal hex, byte arrays
// as 0x-prefixed hex.
func HexAddress(addr string) string {
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return addr
	}
	return "0x" + addr
}

func HexUint(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

func HexBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

func HexBytes(b []byte) string {
	if len(b) == 0 {
		return "0x"
	}
	return fmt.Sprintf("0x%x", b)
}

func parseHexUint256(hexVal string) (*big.Int, error) {
	hexVal = strings.TrimPrefix(hexVal, "0x")
	if hexVal == "" {
		hexVal = "0"
	}
	n, ok := new(big.Int).SetString(hexVal, 16)
	if !ok {
		return nil, fmt.Errorf("chainrpc: unparseable hex integer %q", hexVal)
	}
	return n, nil
}

// expectString validates the raw JSON is a string before decoding into it,
// per spec.md §4.K's "responses validated by type before decoding".
func expectString(raw json.RawMessage, out *string) error {
	if len(raw) == 0 || raw[0] != '"' {
		return fmt.Errorf("chainrpc: expected JSON string, got %s", truncate(raw))
	}
	return json.Unmarshal(raw, out)
}

func expectArray(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || raw[0] != '[' {
		return fmt.Errorf("chainrpc: expected JSON array, got %s", truncate(raw))
	}
	return json.Unmarshal(raw, out)
}

func expectObject(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("chainrpc: expected JSON object, got %s", truncate(raw))
	}
	return json.Unmarshal(raw, out)
}

func truncate(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
