package estimator

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0x0000000000000000000000000000000000000101")
	wbtc = common.HexToAddress("0x0000000000000000000000000000000000000102")
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type fakeFeed struct {
	prices map[common.Address]struct {
		price     *big.Int
		updatedAt time.Time
		decimals  uint8
	}
}

func (f *fakeFeed) set(token common.Address, price int64, updatedAt time.Time, decimals uint8) {
	if f.prices == nil {
		f.prices = make(map[common.Address]struct {
			price     *big.Int
			updatedAt time.Time
			decimals  uint8
		})
	}
	f.prices[token] = struct {
		price     *big.Int
		updatedAt time.Time
		decimals  uint8
	}{big.NewInt(price), updatedAt, decimals}
}

func (f *fakeFeed) LatestPrice(token common.Address) (*big.Int, time.Time, uint8, error) {
	p, ok := f.prices[token]
	if !ok {
		return nil, time.Time{}, 0, errors.New("no feed")
	}
	return new(big.Int).Set(p.price), p.updatedAt, p.decimals, nil
}

type fakeMeta map[common.Address]uint8

func (m fakeMeta) Decimals(token common.Address) uint8 { return m[token] }

func newEstimator(t *testing.T, feed *fakeFeed, now time.Time) *Estimator {
	t.Helper()
	return New(feed, fakeMeta{usdc: 6, wbtc: 8}, &fixedClock{now: now})
}

func TestEstimateCrossRate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(usdc, 1_0000_0000, now, 8)          // $1.00
	feed.set(wbtc, 50_000_0000_0000, now, 8)     // $50,000
	e := newEstimator(t, feed, now)

	// Sell 100 USDC (1e8 base units at 6 decimals = 100e6) for WBTC (8 decimals).
	// Fair output: 100/50000 BTC = 0.002 BTC = 200_000 sats; minus 5% = 190_000.
	out, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(190_000)), "got %s", out)
}

func TestEstimateSlippageAdjustable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(usdc, 1_0000_0000, now, 8)
	feed.set(wbtc, 50_000_0000_0000, now, 8)
	e := newEstimator(t, feed, now)

	require.NoError(t, e.SetSlippageBPS(100)) // 1%
	out, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(198_000)))
}

func TestSetSlippageBounds(t *testing.T) {
	e := newEstimator(t, &fakeFeed{}, time.Unix(0, 0))
	assert.ErrorIs(t, e.SetSlippageBPS(0), ErrSlippageOutOfRange)
	assert.ErrorIs(t, e.SetSlippageBPS(10000), ErrSlippageOutOfRange)
	assert.ErrorIs(t, e.SetSlippageBPS(20000), ErrSlippageOutOfRange)
	assert.NoError(t, e.SetSlippageBPS(9999))
	assert.NoError(t, e.SetSlippageBPS(1))
	assert.Equal(t, uint32(1), e.SlippageBPS())
}

func TestEstimateStaleBuySideCollapsesFloor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(usdc, 1_0000_0000, now, 8)
	feed.set(wbtc, 50_000_0000_0000, now.Add(-StaleAfter-time.Second), 8)
	e := newEstimator(t, feed, now)

	out, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(1)), "stale buy side must disable the floor, not block the trade")
}

func TestEstimateZeroBuyPriceCollapsesFloor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(usdc, 1_0000_0000, now, 8)
	feed.set(wbtc, 0, now, 8)
	e := newEstimator(t, feed, now)

	out, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(1)))
}

func TestEstimateStaleSellSideAssumesUnitPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(usdc, 98_000_000, now.Add(-StaleAfter-time.Minute), 8) // stale $0.98 ignored
	feed.set(wbtc, 50_000_0000_0000, now, 8)
	e := newEstimator(t, feed, now)

	out, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	require.NoError(t, err)
	// Identical to the fresh $1.00 case.
	assert.Zero(t, out.Cmp(big.NewInt(190_000)))
}

func TestEstimateMissingSellFeedAssumesUnitPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(wbtc, 50_000_0000_0000, now, 8)
	e := newEstimator(t, feed, now)

	out, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(190_000)))
}

func TestEstimateMixedFeedDecimals(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(usdc, 1_000_000_000_000_000_000, now, 18) // $1.00 at 18 decimals
	feed.set(wbtc, 50_000_0000_0000, now, 8)
	e := newEstimator(t, feed, now)

	out, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(190_000)))
}

func TestEstimatePriceVanishesAtCommonPrecision(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{}
	feed.set(usdc, 1_0000_0000, now, 8)
	// Price so small it rounds to zero when rescaled from 18 to 8 decimals.
	feed.set(wbtc, 1_000, now, 18)
	e := newEstimator(t, feed, now)

	_, err := e.Estimate(usdc, big.NewInt(100_000_000), wbtc)
	assert.ErrorIs(t, err, ErrPriceVanishes)
}
