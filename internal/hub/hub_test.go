package hub

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hubAddr = common.HexToAddress("0x0000000000000000000000000000000000000AB1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	org     = common.HexToAddress("0x00000000000000000000000000000000000000C3")
	usdc    = common.HexToAddress("0x00000000000000000000000000000000000000D4")
)

func TestRegisterAvatarAndHumanFlag(t *testing.T) {
	h := New(hubAddr)
	require.NoError(t, h.RegisterAvatar(alice, true))
	require.NoError(t, h.RegisterAvatar(org, false))

	assert.True(t, h.IsHuman(alice))
	assert.False(t, h.IsHuman(org))
	assert.False(t, h.IsHuman(bob), "unregistered account is not human")

	err := h.RegisterAvatar(alice, true)
	assert.ErrorIs(t, err, ErrAvatarExists)
}

func TestTokenIDRoundTrip(t *testing.T) {
	h := New(hubAddr)
	id := TokenIDForAvatar(alice)
	assert.Equal(t, alice, h.AvatarFromTokenID(id))
	assert.Equal(t, common.Address{}, h.AvatarFromTokenID(nil))
}

func TestDecimals(t *testing.T) {
	h := New(hubAddr)
	require.NoError(t, h.RegisterAvatar(alice, true))
	h.RegisterToken(usdc, 6)

	assert.Equal(t, uint8(6), h.Decimals(usdc))
	assert.Equal(t, uint8(18), h.Decimals(alice))
	assert.Equal(t, uint8(18), h.Decimals(bob), "undeclared tokens default to 18")
}

func TestTransfer(t *testing.T) {
	h := New(hubAddr)
	h.RegisterToken(usdc, 6)
	h.Mint(usdc, alice, big.NewInt(100))

	require.NoError(t, h.Transfer(usdc, alice, bob, big.NewInt(40)))
	assert.Equal(t, big.NewInt(60), h.BalanceOf(alice, usdc))
	assert.Equal(t, big.NewInt(40), h.BalanceOf(bob, usdc))

	err := h.Transfer(usdc, alice, bob, big.NewInt(61))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, big.NewInt(60), h.BalanceOf(alice, usdc), "failed transfer must not move funds")

	require.NoError(t, h.Transfer(usdc, alice, bob, big.NewInt(0)), "zero transfer is a no-op")
	require.NoError(t, h.Transfer(usdc, alice, bob, nil))
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	h := New(hubAddr)
	h.Mint(usdc, alice, big.NewInt(100))

	b := h.BalanceOf(alice, usdc)
	b.SetInt64(0)
	assert.Equal(t, big.NewInt(100), h.BalanceOf(alice, usdc))
}

func TestApproveAndPullFunds(t *testing.T) {
	h := New(hubAddr)
	h.Mint(usdc, alice, big.NewInt(100))
	require.NoError(t, h.Approve(usdc, alice, bob, big.NewInt(50)))
	assert.Equal(t, big.NewInt(50), h.Allowance(usdc, alice, bob))

	require.NoError(t, h.PullFunds(usdc, alice, org, bob, big.NewInt(30)))
	assert.Equal(t, big.NewInt(70), h.BalanceOf(alice, usdc))
	assert.Equal(t, big.NewInt(30), h.BalanceOf(org, usdc))
	assert.Equal(t, big.NewInt(20), h.Allowance(usdc, alice, bob))

	err := h.PullFunds(usdc, alice, org, bob, big.NewInt(21))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	err = h.PullFunds(usdc, alice, org, org, big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientAllowance, "unapproved spender cannot pull")
}

func TestBurn(t *testing.T) {
	h := New(hubAddr)
	h.Mint(usdc, alice, big.NewInt(10))
	require.NoError(t, h.Burn(usdc, alice, big.NewInt(4)))
	assert.Equal(t, big.NewInt(6), h.BalanceOf(alice, usdc))
	assert.ErrorIs(t, h.Burn(usdc, alice, big.NewInt(7)), ErrInsufficientBalance)
}

func TestWrapPersonalToken(t *testing.T) {
	h := New(hubAddr)
	require.NoError(t, h.RegisterAvatar(alice, true))

	// Raw personal units are keyed by the avatar address itself.
	h.Mint(alice, bob, big.NewInt(100))

	wrapper, err := h.WrapPersonalToken(alice, bob, big.NewInt(60))
	require.NoError(t, err)
	assert.Equal(t, WrappedToken(alice), wrapper)
	assert.Equal(t, big.NewInt(40), h.BalanceOf(bob, alice))
	assert.Equal(t, big.NewInt(60), h.BalanceOf(bob, wrapper))
	assert.Equal(t, uint8(18), h.Decimals(wrapper))

	// Wrapping again reuses the same wrapper address.
	again, err := h.WrapPersonalToken(alice, bob, big.NewInt(40))
	require.NoError(t, err)
	assert.Equal(t, wrapper, again)
	assert.Equal(t, big.NewInt(100), h.BalanceOf(bob, wrapper))

	_, err = h.WrapPersonalToken(bob, alice, big.NewInt(1))
	assert.ErrorIs(t, err, ErrUnknownAvatar)

	_, err = h.WrapPersonalToken(alice, bob, big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestWrappedTokenDistinctPerAvatar(t *testing.T) {
	assert.NotEqual(t, WrappedToken(alice), WrappedToken(bob))
	assert.NotEqual(t, common.Address{}, WrappedToken(alice))
}

func TestTransferWithCallback(t *testing.T) {
	h := New(hubAddr)
	require.NoError(t, h.RegisterAvatar(alice, true))
	h.Mint(alice, alice, big.NewInt(100))

	var gotOperator, gotFrom common.Address
	var gotAmount *big.Int
	var gotData []byte
	h.SetCallback(org, func(operator, from common.Address, tokenID, amount *big.Int, data []byte) error {
		gotOperator, gotFrom = operator, from
		gotAmount = new(big.Int).Set(amount)
		gotData = data
		return nil
	})

	id := TokenIDForAvatar(alice)
	require.NoError(t, h.TransferWithCallback(alice, alice, org, id, big.NewInt(30), []byte{0x01}))
	assert.Equal(t, big.NewInt(70), h.BalanceOf(alice, alice))
	assert.Equal(t, big.NewInt(30), h.BalanceOf(org, alice))
	assert.Equal(t, alice, gotOperator)
	assert.Equal(t, alice, gotFrom)
	assert.Equal(t, big.NewInt(30), gotAmount)
	assert.Equal(t, []byte{0x01}, gotData)
}

func TestTransferWithCallbackRevertsOnError(t *testing.T) {
	h := New(hubAddr)
	require.NoError(t, h.RegisterAvatar(alice, true))
	h.Mint(alice, alice, big.NewInt(100))

	boom := errors.New("rejected")
	h.SetCallback(org, func(common.Address, common.Address, *big.Int, *big.Int, []byte) error {
		return boom
	})

	err := h.TransferWithCallback(alice, alice, org, TokenIDForAvatar(alice), big.NewInt(30), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, big.NewInt(100), h.BalanceOf(alice, alice), "balance restored after callback failure")
	assert.Equal(t, big.NewInt(0), h.BalanceOf(org, alice))
}

func TestTransferWithCallbackNoCallbackRegistered(t *testing.T) {
	h := New(hubAddr)
	require.NoError(t, h.RegisterAvatar(alice, true))
	h.Mint(alice, alice, big.NewInt(10))

	require.NoError(t, h.TransferWithCallback(alice, alice, bob, TokenIDForAvatar(alice), big.NewInt(10), nil))
	assert.Equal(t, big.NewInt(10), h.BalanceOf(bob, alice))
}

func TestTransferWithCallbackInsufficientBalance(t *testing.T) {
	h := New(hubAddr)
	require.NoError(t, h.RegisterAvatar(alice, true))

	err := h.TransferWithCallback(alice, alice, bob, TokenIDForAvatar(alice), big.NewInt(1), nil)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}
