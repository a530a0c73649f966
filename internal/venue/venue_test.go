package venue

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crclabs/backingd/internal/core/order"
	"github.com/crclabs/backingd/internal/crypto"
	"github.com/crclabs/backingd/internal/hub"
)

var (
	settlement = common.HexToAddress("0x000000000000000000000000000000000000CE11")
	instance   = common.HexToAddress("0x0000000000000000000000000000000000001001")
	sellToken  = common.HexToAddress("0x0000000000000000000000000000000000002001")
	buyToken   = common.HexToAddress("0x0000000000000000000000000000000000002002")
)

type testEnv struct {
	ledger      *hub.Hub
	unsupported map[common.Address]bool
}

func (e *testEnv) BalanceOf(owner, token common.Address) *big.Int {
	return e.ledger.BalanceOf(owner, token)
}

func (e *testEnv) IsSupportedAsset(token common.Address) bool {
	return !e.unsupported[token]
}

func newFixture(t *testing.T) (*Venue, *hub.Hub, *testEnv) {
	t.Helper()
	h := hub.New(common.HexToAddress("0xAB1"))
	env := &testEnv{ledger: h, unsupported: make(map[common.Address]bool)}
	return New(h, env, settlement), h, env
}

func params(validTo int64) order.StaticParams {
	return order.StaticParams{
		SellToken:  sellToken,
		SellAmount: big.NewInt(100_000_000),
		BuyToken:   buyToken,
		BuyAmount:  big.NewInt(190_000),
		ValidTo:    validTo,
		AppData:    common.HexToHash("0x01"),
	}
}

func register(t *testing.T, v *Venue, p order.StaticParams) order.UID {
	t.Helper()
	require.NoError(t, v.RegisterOrder(instance, p, `{"appCode":"backingd"}`))
	uid := order.Build(instance, p.SellToken, p.SellAmount, p.BuyToken, p.BuyAmount, p.ValidTo, p.AppData).UID()
	require.NoError(t, v.SetPreSignature(instance, uid, true))
	return uid
}

func TestRegisterOrderDuplicate(t *testing.T) {
	v, _, _ := newFixture(t)
	p := params(1000)
	require.NoError(t, v.RegisterOrder(instance, p, ""))
	assert.ErrorIs(t, v.RegisterOrder(instance, p, ""), ErrOrderExists)
}

func TestSetPreSignature(t *testing.T) {
	v, _, _ := newFixture(t)
	p := params(1000)
	require.NoError(t, v.RegisterOrder(instance, p, ""))
	uid := order.Build(instance, p.SellToken, p.SellAmount, p.BuyToken, p.BuyAmount, p.ValidTo, p.AppData).UID()

	assert.ErrorIs(t, v.SetPreSignature(settlement, uid, true), ErrOrderNotOwned)
	assert.ErrorIs(t, v.SetPreSignature(instance, order.UID{1}, true), ErrOrderUnknown)
	require.NoError(t, v.SetPreSignature(instance, uid, true))
}

func TestSignOrderRecoversOwner(t *testing.T) {
	v, h, _ := newFixture(t)
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	owner := kp.Address()

	p := params(1000)
	require.NoError(t, v.RegisterOrder(owner, p, ""))
	uid := order.Build(owner, p.SellToken, p.SellAmount, p.BuyToken, p.BuyAmount, p.ValidTo, p.AppData).UID()

	sig := kp.SignDigest(uid.Digest())
	assert.ErrorIs(t, v.SignOrder(order.UID{1}, sig), ErrOrderUnknown)
	require.NoError(t, v.SignOrder(uid, sig))

	// A signature from a different key must not authorize the order.
	require.NoError(t, v.SetPreSignature(owner, uid, false))
	stranger, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	assert.ErrorIs(t, v.SignOrder(uid, stranger.SignDigest(uid.Digest())), ErrBadSignature)

	h.Mint(sellToken, owner, big.NewInt(100_000_000))
	h.Mint(buyToken, settlement, big.NewInt(1_000_000))
	assert.ErrorIs(t, v.Fill(uid, big.NewInt(190_000), time.Unix(500, 0)), ErrOrderNotSigned)

	require.NoError(t, v.SignOrder(uid, sig))
	require.NoError(t, v.Fill(uid, big.NewInt(190_000), time.Unix(500, 0)))
}

func TestFilledAmountUnknownUID(t *testing.T) {
	v, _, _ := newFixture(t)
	assert.Equal(t, big.NewInt(0), v.FilledAmount(order.UID{0xff}))
}

func TestFillSettlesBothLegs(t *testing.T) {
	v, h, _ := newFixture(t)
	now := time.Unix(500, 0)
	uid := register(t, v, params(1000))

	h.Mint(sellToken, instance, big.NewInt(100_000_000))
	h.Mint(buyToken, settlement, big.NewInt(1_000_000))

	require.NoError(t, v.Fill(uid, big.NewInt(195_000), now))

	assert.Equal(t, big.NewInt(0), h.BalanceOf(instance, sellToken))
	assert.Equal(t, big.NewInt(100_000_000), h.BalanceOf(settlement, sellToken))
	assert.Equal(t, big.NewInt(195_000), h.BalanceOf(instance, buyToken))
	assert.Equal(t, big.NewInt(195_000), v.FilledAmount(uid))
}

func TestFillRejectsBelowMinimum(t *testing.T) {
	v, h, _ := newFixture(t)
	uid := register(t, v, params(1000))
	h.Mint(sellToken, instance, big.NewInt(100_000_000))
	h.Mint(buyToken, settlement, big.NewInt(1_000_000))

	err := v.Fill(uid, big.NewInt(189_999), time.Unix(500, 0))
	assert.ErrorIs(t, err, ErrFillBelowMinimum)
	assert.Equal(t, big.NewInt(0), v.FilledAmount(uid))
}

func TestFillExactlyOnce(t *testing.T) {
	v, h, _ := newFixture(t)
	uid := register(t, v, params(1000))
	h.Mint(sellToken, instance, big.NewInt(200_000_000))
	h.Mint(buyToken, settlement, big.NewInt(1_000_000))

	require.NoError(t, v.Fill(uid, big.NewInt(190_000), time.Unix(500, 0)))
	assert.ErrorIs(t, v.Fill(uid, big.NewInt(190_000), time.Unix(501, 0)), ErrOrderFilled)
}

func TestFillRequiresPreSignature(t *testing.T) {
	v, h, _ := newFixture(t)
	p := params(1000)
	require.NoError(t, v.RegisterOrder(instance, p, ""))
	uid := order.Build(instance, p.SellToken, p.SellAmount, p.BuyToken, p.BuyAmount, p.ValidTo, p.AppData).UID()
	h.Mint(sellToken, instance, big.NewInt(100_000_000))
	h.Mint(buyToken, settlement, big.NewInt(1_000_000))

	assert.ErrorIs(t, v.Fill(uid, big.NewInt(190_000), time.Unix(500, 0)), ErrOrderNotSigned)
}

func TestFillRejectedByEvaluation(t *testing.T) {
	v, h, env := newFixture(t)
	uid := register(t, v, params(1000))
	h.Mint(buyToken, settlement, big.NewInt(1_000_000))

	// No sell balance on the instance yet.
	var rej *order.Rejected
	err := v.Fill(uid, big.NewInt(190_000), time.Unix(500, 0))
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, order.RejectBalanceInsufficient, rej.Code)

	h.Mint(sellToken, instance, big.NewInt(100_000_000))
	env.unsupported[buyToken] = true
	err = v.Fill(uid, big.NewInt(190_000), time.Unix(500, 0))
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, order.RejectAssetUnsupported, rej.Code)

	env.unsupported[buyToken] = false
	err = v.Fill(uid, big.NewInt(190_000), time.Unix(1001, 0))
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, order.RejectOrderExpired, rej.Code)
	assert.True(t, rej.Terminal())
}

func TestFillRevertsSellLegWhenLiquidityShort(t *testing.T) {
	v, h, _ := newFixture(t)
	uid := register(t, v, params(1000))
	h.Mint(sellToken, instance, big.NewInt(100_000_000))
	// Settlement account holds nothing of the buy token.

	err := v.Fill(uid, big.NewInt(190_000), time.Unix(500, 0))
	require.Error(t, err)
	assert.Equal(t, big.NewInt(100_000_000), h.BalanceOf(instance, sellToken), "sell leg restored")
	assert.Equal(t, big.NewInt(0), v.FilledAmount(uid))
}

func TestEvaluateMatchesRelayerView(t *testing.T) {
	v, h, _ := newFixture(t)
	uid := register(t, v, params(1000))

	_, err := v.Evaluate(uid, time.Unix(500, 0))
	require.Error(t, err, "no balance yet")

	h.Mint(sellToken, instance, big.NewInt(100_000_000))
	terms, err := v.Evaluate(uid, time.Unix(1000, 0))
	require.NoError(t, err, "validTo is inclusive")
	assert.Equal(t, instance, terms.Receiver)
	assert.Equal(t, order.KindSell, terms.Kind)
	assert.False(t, terms.PartiallyFillable)

	_, err = v.Evaluate(order.UID{2}, time.Unix(500, 0))
	assert.ErrorIs(t, err, ErrOrderUnknown)
}
