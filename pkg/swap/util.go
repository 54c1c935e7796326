package swap

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

func jsonUnmarshalRPC(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// encodeCall ABI-encodes a call as selector || args, each arg left-padded to
// a 32-byte word (spec.md §4.K: "addresses and large integers emitted as
// 0x-prefixed minimal hex strings; byte arrays as 0x-prefixed hex" — here
// encoded as raw bytes since this calldata goes straight into sendTransaction's
// data field rather than through the hex-string RPC parameters).
func encodeCall(selector Selector, args ...[]byte) []byte {
	out := make([]byte, 0, 4+32*len(args))
	out = append(out, selector[:]...)
	for _, a := range args {
		out = append(out, leftPad32(a)...)
	}
	return out
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func hexToBytes32(addr string) []byte {
	addr = strings.TrimPrefix(addr, "0x")
	b, err := hex.DecodeString(addr)
	if err != nil {
		return make([]byte, 20)
	}
	return b
}

func decimalToBytes32(value string) []byte {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return make([]byte, 32)
	}
	return n.Bytes()
}

// decodeEvent matches a raw log's event_selector against the four known
// topics and extracts its hashed-secret key plus the counterparty/value
// chunks used by Event.Matches.
func decodeEvent(selectorHex, dataHex, blockHex string) (Event, uint64, bool) {
	name, ok := eventNameForTopic(selectorHex)
	if !ok {
		return Event{}, 0, false
	}
	data := strings.TrimPrefix(dataHex, "0x")
	if len(data) < 40+64+64 {
		return Event{}, 0, false
	}
	block, _ := strconv.ParseUint(strings.TrimPrefix(blockHex, "0x"), 16, 64)
	return Event{
		Name:            name,
		HashedSecretHex: data[0:40],
		CounterpartyHex: data[40:104],
		ValueHex:        data[104:168],
		BlockNumber:     block,
	}, block, true
}

func eventNameForTopic(selectorHex string) (EventName, bool) {
	switch strings.ToLower(strings.TrimPrefix(selectorHex, "0x")) {
	case "initiated":
		return EventInitiated, true
	case "responded":
		return EventResponded, true
	case "refunded":
		return EventRefunded, true
	case "redeemed":
		return EventRedeemed, true
	default:
		return "", false
	}
}
