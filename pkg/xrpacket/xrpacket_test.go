package xrpacket

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func genKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestRequestPacketRoundTrip(t *testing.T) {
	priv := genKey(t)
	p := &RequestPacket{
		Command:  CmdGetBalance,
		Service:  "BLOCK",
		FeeTxHex: "deadbeef",
		Params:   []string{"addr1", "addr2"},
	}
	copy(p.UUID[:], []byte("0123456789abcdef"))
	p.Sign(priv)

	encoded := p.Encode()
	decoded, err := DecodeRequestPacket(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Command != p.Command || decoded.Service != p.Service ||
		decoded.FeeTxHex != p.FeeTxHex || decoded.UUID != p.UUID ||
		decoded.PubKey != p.PubKey || decoded.Sig != p.Sig {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, p)
	}
	if len(decoded.Params) != len(p.Params) {
		t.Fatalf("params length mismatch")
	}
	for i := range p.Params {
		if decoded.Params[i] != p.Params[i] {
			t.Fatalf("param[%d] mismatch: got %q want %q", i, decoded.Params[i], p.Params[i])
		}
	}

	reencoded := decoded.Encode()
	if string(reencoded) != string(encoded) {
		t.Fatalf("encode(decode(p)) != p")
	}
}

func TestReplyPacketRoundTrip(t *testing.T) {
	priv := genKey(t)
	p := &ReplyPacket{Command: CmdReply, Payload: `{"result":"ok"}`}
	copy(p.UUID[:], []byte("fedcba9876543210"))
	p.Sign(priv)

	encoded := p.Encode()
	decoded, err := DecodeReplyPacket(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Payload != p.Payload || decoded.UUID != p.UUID || decoded.PubKey != p.PubKey {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, p)
	}
	if string(decoded.Encode()) != string(encoded) {
		t.Fatalf("encode(decode(p)) != p")
	}
}

func TestRequestPacketVerifySucceedsForGenuineSignature(t *testing.T) {
	priv := genKey(t)
	p := &RequestPacket{Command: CmdGetBlockCount, Service: "BLOCK"}
	p.Sign(priv)
	if !p.Verify() {
		t.Fatalf("expected genuine signature to verify")
	}
}

func TestRequestPacketVerifyRejectsForgedSignature(t *testing.T) {
	priv := genKey(t)
	p := &RequestPacket{Command: CmdGetBlockCount, Service: "BLOCK"}
	p.Sign(priv)

	other := genKey(t)
	forged := &RequestPacket{Command: CmdGetBlockCount, Service: "BLOCK"}
	forged.Sign(other)
	// Splice another signer's signature onto the original's claimed pubkey.
	p.Sig = forged.Sig
	if p.Verify() {
		t.Fatalf("expected forged signature to fail verification")
	}
}

func TestRequestPacketVerifyRejectsTamperedPayload(t *testing.T) {
	priv := genKey(t)
	p := &RequestPacket{Command: CmdGetBalance, Service: "BLOCK", Params: []string{"addr1"}}
	p.Sign(priv)

	p.Params[0] = "addr2"
	if p.Verify() {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestReplyPacketVerifyRejectsForgedSignature(t *testing.T) {
	priv := genKey(t)
	p := &ReplyPacket{Command: CmdReply, Payload: "100"}
	p.Sign(priv)

	other := genKey(t)
	forged := &ReplyPacket{Command: CmdReply, Payload: "100"}
	forged.Sign(other)
	p.Sig = forged.Sig
	if p.Verify() {
		t.Fatalf("expected forged reply signature to fail verification")
	}
}
