package bitcoin

import (
	"math/big"
	"testing"

	"github.com/yourusername/xrouter/pkg/chainadapter"
)

func TestSelectUTXOsFoldsSubDustChangeIntoFee(t *testing.T) {
	tb, err := NewTransactionBuilder("regtest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	utxos := []UTXO{{TxID: "a", Vout: 0, Amount: 100000}}
	selected, change, err := tb.selectUTXOs(utxos, 99300, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(selected) != 1 {
		t.Fatalf("expected one utxo selected, got %d", len(selected))
	}
	if change != 0 {
		t.Fatalf("expected sub-dust change to fold into fee, got %d", change)
	}
}

func TestSelectUTXOsReturnsInsufficientFunds(t *testing.T) {
	tb, _ := NewTransactionBuilder("regtest")
	utxos := []UTXO{{TxID: "a", Vout: 0, Amount: 100}}
	_, _, err := tb.selectUTXOs(utxos, 99000, 1)
	if err == nil {
		t.Fatalf("expected insufficient funds error")
	}
	ce, ok := err.(*chainadapter.Error)
	if !ok || ce.Code != chainadapter.ErrCodeInsufficientFunds {
		t.Fatalf("expected ErrCodeInsufficientFunds, got %v", err)
	}
}

func TestBuildRejectsNonPositiveAmount(t *testing.T) {
	tb, _ := NewTransactionBuilder("regtest")
	req := &chainadapter.TransactionRequest{
		From:   "bcrt1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		To:     "bcrt1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		Amount: big.NewInt(0),
	}
	if err := tb.validateRequest(req); err == nil {
		t.Fatalf("expected validation error for zero amount")
	}
}
