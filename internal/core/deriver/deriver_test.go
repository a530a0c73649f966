package deriver

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceAddressDeterminism(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	backer := common.HexToAddress("0x1111111111111111111111111111111111111111")
	fp := FingerprintOf([]byte("backing-instance-v1"))

	a := InstanceAddress(factory, backer, fp)
	b := InstanceAddress(factory, backer, fp)
	assert.Equal(t, a, b, "derivation must be a pure function of its inputs")
	assert.NotEqual(t, common.Address{}, a)
}

func TestInstanceAddressMatchesManualScheme(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	backer := common.HexToAddress("0x2222222222222222222222222222222222222222")
	fp := FingerprintOf([]byte("backing-instance-v1"))

	salt := Salt(backer)
	preimage := append([]byte{0xff}, factory.Bytes()...)
	preimage = append(preimage, salt[:]...)
	preimage = append(preimage, fp[:]...)
	want := common.BytesToAddress(crypto.Keccak256(preimage)[12:])

	require.Equal(t, want, InstanceAddress(factory, backer, fp))
}

func TestInstanceAddressVariesPerInput(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	other := common.HexToAddress("0x00000000000000000000000000000000000000f2")
	backer1 := common.HexToAddress("0x3333333333333333333333333333333333333333")
	backer2 := common.HexToAddress("0x4444444444444444444444444444444444444444")
	fp1 := FingerprintOf([]byte("v1"))
	fp2 := FingerprintOf([]byte("v2"))

	base := InstanceAddress(factory, backer1, fp1)
	assert.NotEqual(t, base, InstanceAddress(factory, backer2, fp1), "backer must affect the address")
	assert.NotEqual(t, base, InstanceAddress(other, backer1, fp1), "factory must affect the address")
	assert.NotEqual(t, base, InstanceAddress(factory, backer1, fp2), "fingerprint must affect the address")
}

func TestSaltDependsOnlyOnBacker(t *testing.T) {
	backer := common.HexToAddress("0x5555555555555555555555555555555555555555")
	assert.Equal(t, Salt(backer), Salt(backer))
	assert.Equal(t, crypto.Keccak256Hash(backer.Bytes()), common.Hash(Salt(backer)))
}
