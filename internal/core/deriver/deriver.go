// Package deriver computes the deterministic address of a backing instance
// before it exists, so the factory, the settlement venue, and off-chain
// tooling can all reference the same counterfactual address.
package deriver

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CodeFingerprint identifies one deployment generation of the instance code.
// Two factories running different instance code derive disjoint address sets.
type CodeFingerprint [32]byte

// Salt derives the creation salt for a backer. The salt depends only on the
// backer identity, which caps each backer to exactly one instance per
// deployment generation.
func Salt(backer common.Address) [32]byte {
	return crypto.Keccak256Hash(backer.Bytes())
}

// InstanceAddress computes the counterfactual instance address:
//
//	keccak256(0xff ‖ factory ‖ keccak256(backer) ‖ fingerprint)[12:]
//
// It is a pure function of its inputs and must agree with the address the
// factory actually deploys at.
func InstanceAddress(factory, backer common.Address, fingerprint CodeFingerprint) common.Address {
	return crypto.CreateAddress2(factory, Salt(backer), fingerprint[:])
}

// FingerprintOf hashes an arbitrary code identifier into a CodeFingerprint.
func FingerprintOf(code []byte) CodeFingerprint {
	return CodeFingerprint(crypto.Keccak256Hash(code))
}
