package chainrpc

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeClient struct {
	responses map[string]json.RawMessage
	err       error
}

func (f *fakeClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[method], nil
}
func (f *fakeClient) Close() error { return nil }

func TestGetBalanceParsesHexInteger(t *testing.T) {
	client := &fakeClient{responses: map[string]json.RawMessage{
		"eth_getBalance": json.RawMessage(`"0x2540be400"`),
	}}
	a := New(client, NetMainnet)
	bal, err := a.GetBalance(context.Background(), "aaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.Int64() != 10000000000 {
		t.Fatalf("expected 10000000000, got %s", bal)
	}
}

func TestGetBalanceRejectsNonStringResponse(t *testing.T) {
	client := &fakeClient{responses: map[string]json.RawMessage{
		"eth_getBalance": json.RawMessage(`{"unexpected":"object"}`),
	}}
	a := New(client, NetMainnet)
	if _, err := a.GetBalance(context.Background(), "aaaa"); err == nil {
		t.Fatalf("expected type-validation error")
	}
}

func TestGetTransactionByHashRejectsUnminedTransaction(t *testing.T) {
	client := &fakeClient{responses: map[string]json.RawMessage{
		"eth_getTransactionByHash": json.RawMessage(`{"blockNumber":null}`),
	}}
	a := New(client, NetMainnet)
	if _, err := a.GetTransactionByHash(context.Background(), "0xdead"); err == nil {
		t.Fatalf("expected error for unmined transaction")
	}
}

func TestHexEncodingHelpers(t *testing.T) {
	if got := HexAddress("abcd"); got != "0xabcd" {
		t.Fatalf("HexAddress = %q", got)
	}
	if got := HexAddress("0xabcd"); got != "0xabcd" {
		t.Fatalf("HexAddress should not double-prefix: %q", got)
	}
	if got := HexUint(255); got != "0xff" {
		t.Fatalf("HexUint(255) = %q", got)
	}
	if got := HexBytes(nil); got != "0x" {
		t.Fatalf("HexBytes(nil) = %q", got)
	}
}
