package feegen

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/yourusername/xrouter/pkg/chainadapter"
	"github.com/yourusername/xrouter/pkg/registry"
)

type fakeAdapter struct {
	buildErr error
	signErr  error
}

func (f *fakeAdapter) ChainID() string                        { return "FAKE" }
func (f *fakeAdapter) Capabilities() chainadapter.Capabilities { return chainadapter.Capabilities{} }
func (f *fakeAdapter) Build(ctx context.Context, req *chainadapter.TransactionRequest) (*chainadapter.UnsignedTransaction, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &chainadapter.UnsignedTransaction{
		From:            req.From,
		To:              req.To,
		Amount:          req.Amount,
		SigningPayload:  []byte("payload"),
		LockedOutpoints: []string{"tx0:0", "tx0:1"},
		CreatedAt:       time.Now(),
	}, nil
}
func (f *fakeAdapter) Sign(ctx context.Context, unsigned *chainadapter.UnsignedTransaction) (*chainadapter.SignedTransaction, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	return &chainadapter.SignedTransaction{
		UnsignedTx:   unsigned,
		TxHash:       "deadbeef",
		SerializedTx: []byte{0xde, 0xad},
		SignedAt:     time.Now(),
	}, nil
}
func (f *fakeAdapter) Broadcast(ctx context.Context, signed *chainadapter.SignedTransaction) (*chainadapter.BroadcastReceipt, error) {
	return &chainadapter.BroadcastReceipt{TxHash: signed.TxHash}, nil
}
func (f *fakeAdapter) QueryStatus(ctx context.Context, txHash string) (*chainadapter.TransactionStatus, error) {
	return &chainadapter.TransactionStatus{TxHash: txHash, Status: chainadapter.TxStatusPending}, nil
}

type fakeLocker struct{ released [][]string }

func (f *fakeLocker) Release(ids []string) { f.released = append(f.released, ids) }

func mkNode() registry.Node {
	return registry.Node{NodeID: "n1", PaymentAddress: "addr1"}
}

func TestGenerateReturnsSignedHex(t *testing.T) {
	g := New("BTC", "fromaddr", &fakeAdapter{}, &fakeLocker{})
	hex, err := g.Generate(context.Background(), mkNode(), "", 0.0001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hex != "dead" {
		t.Fatalf("expected hex %q, got %q", "dead", hex)
	}
}

func TestGenerateRejectsZeroFee(t *testing.T) {
	g := New("BTC", "fromaddr", &fakeAdapter{}, nil)
	if _, err := g.Generate(context.Background(), mkNode(), "dest", 0); err == nil {
		t.Fatalf("expected error for non-positive fee")
	}
}

func TestGenerateReleasesOnSignFailure(t *testing.T) {
	locker := &fakeLocker{}
	g := New("BTC", "fromaddr", &fakeAdapter{signErr: errSignFailed}, locker)
	_, err := g.Generate(context.Background(), mkNode(), "dest", 0.0001)
	if err == nil {
		t.Fatalf("expected sign error")
	}
	if len(locker.released) != 1 {
		t.Fatalf("expected locked outputs to be released on sign failure, got %+v", locker.released)
	}
}

func TestReleaseIsIdempotentForUnknownTx(t *testing.T) {
	g := New("BTC", "fromaddr", &fakeAdapter{}, &fakeLocker{})
	g.Release("never-generated")
}

func TestReleaseUnlocksGeneratedTx(t *testing.T) {
	locker := &fakeLocker{}
	g := New("BTC", "fromaddr", &fakeAdapter{}, locker)
	hex, err := g.Generate(context.Background(), mkNode(), "dest", 0.0001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g.Release(hex)
	if len(locker.released) != 1 {
		t.Fatalf("expected one release call, got %d", len(locker.released))
	}
	g.Release(hex) // idempotent second call
	if len(locker.released) != 1 {
		t.Fatalf("expected release to be a no-op the second time")
	}
}

func TestToSmallestUnitRoundsToSatoshi(t *testing.T) {
	got := toSmallestUnit(0.0001)
	want := big.NewInt(10000)
	if got.Cmp(want) != 0 {
		t.Fatalf("toSmallestUnit(0.0001) = %s, want %s", got, want)
	}
}

var errSignFailed = &chainadapter.Error{Code: "ERR_TEST", Message: "sign failed"}
