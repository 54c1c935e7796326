package swap

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// BuildHTLCScript constructs the UTXO-backend redeem script named in spec.md
// §4.J:
//
//	OP_IF
//	  OP_RIPEMD160 <hashedSecret> OP_EQUALVERIFY <redeemPubKey> OP_CHECKSIGVERIFY
//	OP_ELSE
//	  <locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP <refundPubKey>
//	OP_ENDIF
//	OP_CHECKSIG
//
// Grounded on the teacher's txscript.NewScriptBuilder usage in
// src/chainadapter/bitcoin/builder.go (PayToAddrScript/NullDataScript both
// build scripts through txscript, never by hand-concatenating opcodes).
func BuildHTLCScript(hashedSecret [20]byte, redeemPubKey, refundPubKey *btcec.PublicKey, locktime int64) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_RIPEMD160)
	b.AddData(hashedSecret[:])
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(redeemPubKey.SerializeCompressed())
	b.AddOp(txscript.OP_CHECKSIGVERIFY)
	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(locktime)
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(refundPubKey.SerializeCompressed())
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// RedeemWitness builds the witness stack that spends an HTLC output via the
// OP_IF branch: <sig> <preimage> OP_1 <script>.
func RedeemWitness(sig, preimage, script []byte) [][]byte {
	return [][]byte{sig, preimage, {1}, script}
}

// RefundWitness builds the witness stack that spends an HTLC output via the
// OP_ELSE branch after the locktime: <sig> OP_0 <script>.
func RefundWitness(sig, script []byte) [][]byte {
	return [][]byte{sig, {}, script}
}
