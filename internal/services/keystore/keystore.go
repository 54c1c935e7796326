// Package keystore adapts the node operator's encrypted-mnemonic wallet into
// the local signing backends pkg/chainadapter/bitcoin.Wallet and
// pkg/chainadapter/ethereum.KeySource need for fee payments and HTLC funding.
// A service node never custodies counterparty funds; it only needs a small,
// self-funded hot wallet to pay routing fees and post its half of a swap.
// Grounded on the teacher's WalletService (encrypted-at-rest mnemonic,
// Argon2id+AES-256-GCM via internal/services/crypto) and
// internal/services/hdkey.HDKeyService (BIP32 derivation), narrowed from
// multi-coin cold storage down to a live derivation pool (BIP84 for bitcoin,
// BIP44 for ethereum) for exactly the two chain families XRouter signs for.
package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/yourusername/xrouter/internal/services/audit"
	"github.com/yourusername/xrouter/internal/services/bip39service"
	"github.com/yourusername/xrouter/internal/services/crypto"
	"github.com/yourusername/xrouter/internal/services/hdkey"
)

// addressPoolSize is how many receive addresses are pre-derived per chain on
// unlock. The fee generator and swap funder only ever need the first funded
// one, but pre-deriving a pool lets the operator rotate addresses.
const addressPoolSize = 20

// KeyStore holds one node's unlocked hot-wallet key material in memory. It is
// never written to disk in decrypted form; Open re-derives the pool from the
// encrypted mnemonic on every process start.
type KeyStore struct {
	mu       sync.RWMutex
	params   *chaincfg.Params
	btcKeys  map[string]*btcec.PrivateKey
	ethKeys  map[string]*ecdsa.PrivateKey
	auditLog *audit.AuditLogger
}

// Open decrypts the mnemonic at mnemonicPath with password and derives the
// node's Bitcoin and Ethereum fee-wallet address pools. params selects the
// Bitcoin network (mainnet/testnet/regtest); Ethereum derivation is
// network-agnostic since the same secp256k1 key signs on every EVM chain.
func Open(mnemonicPath, password string, params *chaincfg.Params, auditPath string) (*KeyStore, error) {
	encryptedData, err := os.ReadFile(mnemonicPath)
	if err != nil {
		return nil, fmt.Errorf("keystore: read encrypted mnemonic: %w", err)
	}
	encrypted, err := crypto.DeserializeEncryptedData(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("keystore: deserialize encrypted mnemonic: %w", err)
	}
	mnemonic, err := crypto.DecryptMnemonic(encrypted, password)
	if err != nil {
		return nil, fmt.Errorf("keystore: decrypt mnemonic: %w", err)
	}
	defer crypto.ClearBytes([]byte(mnemonic))

	bip39Svc := bip39service.NewBIP39Service()
	seed, err := bip39Svc.MnemonicToSeed(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("keystore: mnemonic to seed: %w", err)
	}
	defer crypto.ClearBytes(seed)

	hdSvc := hdkey.NewHDKeyService()
	master, err := hdSvc.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("keystore: derive master key: %w", err)
	}

	ks := &KeyStore{
		params:  params,
		btcKeys: make(map[string]*btcec.PrivateKey),
		ethKeys: make(map[string]*ecdsa.PrivateKey),
	}
	if auditPath != "" {
		if logger, err := audit.NewAuditLogger(auditPath); err == nil {
			ks.auditLog = logger
		}
	}

	coinType := 0
	if params != &chaincfg.MainNetParams {
		coinType = 1
	}
	for i := 0; i < addressPoolSize; i++ {
		path := fmt.Sprintf("84'/%d'/0'/0/%d", coinType, i)
		child, err := hdSvc.DerivePath(master, path)
		if err != nil {
			return nil, fmt.Errorf("keystore: derive bitcoin path %s: %w", path, err)
		}
		privBytes, err := hdSvc.GetPrivateKey(child)
		if err != nil {
			return nil, fmt.Errorf("keystore: extract bitcoin private key at %s: %w", path, err)
		}
		priv, pub := btcec.PrivKeyFromBytes(privBytes)
		crypto.ClearBytes(privBytes)
		addrPubKey, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
		if err != nil {
			return nil, fmt.Errorf("keystore: derive bitcoin address at %s: %w", path, err)
		}
		ks.btcKeys[addrPubKey.EncodeAddress()] = priv
	}

	for i := 0; i < addressPoolSize; i++ {
		path := fmt.Sprintf("44'/60'/0'/0/%d", i)
		child, err := hdSvc.DerivePath(master, path)
		if err != nil {
			return nil, fmt.Errorf("keystore: derive ethereum path %s: %w", path, err)
		}
		privBytes, err := hdSvc.GetPrivateKey(child)
		if err != nil {
			return nil, fmt.Errorf("keystore: extract ethereum private key at %s: %w", path, err)
		}
		priv, err := gethcrypto.ToECDSA(privBytes)
		crypto.ClearBytes(privBytes)
		if err != nil {
			return nil, fmt.Errorf("keystore: parse ethereum private key at %s: %w", path, err)
		}
		addr := gethcrypto.PubkeyToAddress(priv.PublicKey).Hex()
		ks.ethKeys[addr] = priv
	}

	ks.logUnlock()
	return ks, nil
}

func (ks *KeyStore) logUnlock() {
	if ks.auditLog == nil {
		return
	}
	ks.auditLog.LogOperation(audit.AuditLogEntry{
		ID:        "keystore-unlock",
		Operation: "KEYSTORE_UNLOCK",
		Status:    "SUCCESS",
	})
}

// PrivateKeyFor implements pkg/chainadapter/bitcoin.Wallet.
func (ks *KeyStore) PrivateKeyFor(address string) (*btcec.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.btcKeys[address]
	if !ok {
		return nil, fmt.Errorf("keystore: no bitcoin key for address %s", address)
	}
	return key, nil
}

// PrivateKeyForEth implements pkg/chainadapter/ethereum.KeySource.
func (ks *KeyStore) PrivateKeyForEth(address string) (*ecdsa.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.ethKeys[address]
	if !ok {
		return nil, fmt.Errorf("keystore: no ethereum key for address %s", address)
	}
	return key, nil
}

// Addresses returns the node's derived fee-wallet addresses for the given
// chain family, in map order, so the operator/config layer can pick one to
// fund.
func (ks *KeyStore) Addresses(chain string) []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	var out []string
	switch chain {
	case "bitcoin":
		for addr := range ks.btcKeys {
			out = append(out, addr)
		}
	case "ethereum":
		for addr := range ks.ethKeys {
			out = append(out, addr)
		}
	}
	return out
}
