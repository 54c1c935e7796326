package swap

import (
	"testing"
)

func testParams() Params {
	var hashed HashedSecret
	copy(hashed[:], []byte("01234567890123456789"))
	return Params{
		HashedSecret:     hashed,
		InitiatorAddress: "0xaaaa",
		ResponderAddress: "0xbbbb",
		Value:            "1000",
	}
}

func TestTimelockInvariantEnforced(t *testing.T) {
	if TimelockB >= TimelockA {
		t.Fatalf("timelock_B must be strictly less than timelock_A")
	}
}

func TestInitiatorHappyPath(t *testing.T) {
	m, err := NewMachine(Initiator, testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State != New {
		t.Fatalf("expected New, got %v", m.State)
	}
	if err := m.OnLocalPublish(); err != nil {
		t.Fatalf("local publish: %v", err)
	}
	if m.State != Initiated {
		t.Fatalf("expected Initiated, got %v", m.State)
	}

	evt := Event{
		Name:            EventResponded,
		HashedSecretHex: "3031323334353637383930313233343536373839",
		CounterpartyHex: "000000000000000000000000000000000000000000000000000000000000bbbb",
		ValueHex:        "00000000000000000000000000000000000000000000000000000000000003e8",
	}
	if err := m.OnCounterpartyResponded(evt); err != nil {
		t.Fatalf("counterparty responded: %v", err)
	}
	if m.State != AwaitResponded {
		t.Fatalf("expected AwaitResponded, got %v", m.State)
	}

	var preimage [32]byte
	if err := m.OnRedeem(preimage); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if m.State != Redeemed {
		t.Fatalf("expected Redeemed, got %v", m.State)
	}
}

func TestResponderHappyPath(t *testing.T) {
	m, err := NewMachine(Responder, testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Start()
	if m.State != AwaitInitiated {
		t.Fatalf("expected AwaitInitiated, got %v", m.State)
	}

	evt := Event{
		Name:            EventInitiated,
		HashedSecretHex: "3031323334353637383930313233343536373839",
		CounterpartyHex: "000000000000000000000000000000000000000000000000000000000000aaaa",
		ValueHex:        "00000000000000000000000000000000000000000000000000000000000003e8",
	}
	if err := m.OnCounterpartyInitiated(evt); err != nil {
		t.Fatalf("counterparty initiated: %v", err)
	}
	if err := m.OnLocalPublish(); err != nil {
		t.Fatalf("local publish: %v", err)
	}
	if m.State != Responded {
		t.Fatalf("expected Responded, got %v", m.State)
	}

	var preimage [32]byte
	if err := m.OnExtractPreimage(preimage); err != nil {
		t.Fatalf("extract preimage: %v", err)
	}
	if m.State != Redeemed {
		t.Fatalf("expected Redeemed, got %v", m.State)
	}
}

func TestRefundRejectedAfterRedeemed(t *testing.T) {
	m, _ := NewMachine(Initiator, testParams())
	m.OnLocalPublish()
	m.State = Redeemed
	if err := m.OnRefund(); err == nil {
		t.Fatalf("expected refund to be rejected once redeemed")
	}
}

func TestCounterpartyMismatchRejected(t *testing.T) {
	m, _ := NewMachine(Initiator, testParams())
	m.OnLocalPublish()
	evt := Event{
		Name:            EventResponded,
		HashedSecretHex: "3031323334353637383930313233343536373839",
		CounterpartyHex: "000000000000000000000000000000000000000000000000000000000000cccc", // wrong address
		ValueHex:        "00000000000000000000000000000000000000000000000000000000000003e8",
	}
	if err := m.OnCounterpartyResponded(evt); err == nil {
		t.Fatalf("expected mismatch rejection")
	}
}

func TestCursorNeverRegresses(t *testing.T) {
	c := NewCursor(100)
	c.Advance(150)
	if got := c.Get(); got != 150 {
		t.Fatalf("expected cursor at 150, got %d", got)
	}
	c.Advance(90)
	if got := c.Get(); got != 150 {
		t.Fatalf("cursor must not regress, got %d", got)
	}
}
