package bitcoin

import (
	"bytes"
	"encoding/json"

	"github.com/btcsuite/btcd/wire"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}
