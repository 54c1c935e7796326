package swap

import "testing"

func TestEncodeCallLayout(t *testing.T) {
	data := encodeCall(SelectorRefund, []byte{0x01, 0x02})
	if len(data) != 4+32 {
		t.Fatalf("expected 36 bytes, got %d", len(data))
	}
	if string(data[:4]) != string(SelectorRefund[:]) {
		t.Fatalf("selector not at head of calldata")
	}
	if data[4+30] != 0x01 || data[4+31] != 0x02 {
		t.Fatalf("argument not left-padded correctly: %x", data[4:])
	}
}

func TestDecodeEventRejectsUnknownTopic(t *testing.T) {
	_, _, ok := decodeEvent("mystery", "00", "0x1")
	if ok {
		t.Fatalf("expected unknown topic to be rejected")
	}
}

func TestDecodeEventParsesKnownTopic(t *testing.T) {
	data := "3031323334353637383930313233343536373839" +
		"000000000000000000000000000000000000000000000000000000000000bbbb" +
		"00000000000000000000000000000000000000000000000000000000000003e8"
	evt, block, ok := decodeEvent("initiated", data, "0x2a")
	if !ok {
		t.Fatalf("expected known topic to decode")
	}
	if evt.Name != EventInitiated {
		t.Fatalf("expected EventInitiated, got %v", evt.Name)
	}
	if block != 42 {
		t.Fatalf("expected block 42, got %d", block)
	}
}

func TestSelectorsAreDistinct(t *testing.T) {
	seen := map[Selector]bool{}
	for _, s := range []Selector{SelectorInitiate, SelectorRespond, SelectorRefund, SelectorRedeem} {
		if seen[s] {
			t.Fatalf("duplicate selector %x", s)
		}
		seen[s] = true
	}
}
