// Package crypto provides the daemon's account identities: secp256k1
// keypairs with keccak-derived 20-byte addresses, and recoverable signatures
// over order digests.
package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const privateKeyLen = 32

var (
	ErrInvalidPrivateKey = errors.New("crypto: invalid private key")
	ErrInvalidSignature  = errors.New("crypto: invalid signature")
)

// KeyPair is a secp256k1 account key. The zero value is unusable; construct
// with GenerateKeyPair or KeyPairFromHex.
type KeyPair struct {
	priv *secp256k1.PrivateKey
}

// GenerateKeyPair creates a fresh random keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromHex parses a 32-byte hex private key, with or without a 0x
// prefix. The intermediate seed bytes are erased before returning.
func KeyPairFromHex(s string) (*KeyPair, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	seed, err := hex.DecodeString(s)
	if err != nil || len(seed) != privateKeyLen {
		return nil, ErrInvalidPrivateKey
	}
	defer SecureErase(seed)

	priv := secp256k1.PrivKeyFromBytes(seed)
	if priv.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	return &KeyPair{priv: priv}, nil
}

// PrivateKeyHex returns the 0x-prefixed private key encoding.
func (k *KeyPair) PrivateKeyHex() string {
	return "0x" + hex.EncodeToString(k.priv.Serialize())
}

// PublicKey returns the account's public key.
func (k *KeyPair) PublicKey() *secp256k1.PublicKey {
	return k.priv.PubKey()
}

// Address derives the account address from the public key.
func (k *KeyPair) Address() common.Address {
	return PubKeyAddress(k.priv.PubKey())
}

// SignDigest produces a recoverable signature over a 32-byte digest. The
// layout is [recovery ‖ R ‖ S], 65 bytes.
func (k *KeyPair) SignDigest(digest [32]byte) []byte {
	return secpecdsa.SignCompact(k.priv, digest[:], false)
}

// Destroy zeroes the private key material. The keypair must not be used
// afterwards.
func (k *KeyPair) Destroy() {
	k.priv.Zero()
}

// PubKeyAddress maps a public key to its 20-byte address: the last 20 bytes
// of keccak256 over the uncompressed point without the 0x04 prefix.
func PubKeyAddress(pub *secp256k1.PublicKey) common.Address {
	raw := pub.SerializeUncompressed()
	return common.BytesToAddress(gethcrypto.Keccak256(raw[1:])[12:])
}

// RecoverAddress recovers the signer address of a SignDigest signature.
func RecoverAddress(digest [32]byte, sig []byte) (common.Address, error) {
	pub, _, err := secpecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return PubKeyAddress(pub), nil
}

// VerifyDigest reports whether sig over digest recovers to addr.
func VerifyDigest(addr common.Address, digest [32]byte, sig []byte) bool {
	recovered, err := RecoverAddress(digest, sig)
	return err == nil && recovered == addr
}
