// Package estimator converts oracle price feeds into the minimum acceptable
// output for a backing swap. It is a price floor, not an execution price: the
// venue may fill better, never worse.
package estimator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// StaleAfter is how old a reading may be before it is discarded.
	StaleAfter = 24 * time.Hour

	// DefaultSlippageBPS is the default haircut applied to the cross rate,
	// in basis points (500 = 5%).
	DefaultSlippageBPS = 500

	// defaultPriceDecimals is assumed when a feed reports no decimals.
	defaultPriceDecimals = 8
)

var (
	// ErrSlippageOutOfRange is returned for haircuts outside (0, 10000).
	ErrSlippageOutOfRange = errors.New("estimator: slippage must be within (0, 10000) basis points exclusive")

	// ErrPriceVanishes is returned when rescaling to common precision rounds
	// the buy-side price down to zero. This happens for extremely low-priced
	// assets quoted with more decimals than the sell side.
	ErrPriceVanishes = errors.New("estimator: buy price rounds to zero at common precision")
)

// Feed is a latest-price oracle. A zero price means "no data"; updatedAt
// carries the reading's timestamp for staleness checks.
type Feed interface {
	LatestPrice(token common.Address) (price *big.Int, updatedAt time.Time, decimals uint8, err error)
}

// TokenMeta resolves token display decimals for amount conversion.
type TokenMeta interface {
	Decimals(token common.Address) uint8
}

// Clock abstracts current time so staleness is testable.
type Clock interface {
	Now() time.Time
}

// Estimator computes minimum buy amounts from a feed pair.
type Estimator struct {
	feed   Feed
	tokens TokenMeta
	clock  Clock

	mu          sync.RWMutex
	slippageBPS uint32
}

// New builds an estimator with the default slippage haircut.
func New(feed Feed, tokens TokenMeta, clock Clock) *Estimator {
	return &Estimator{feed: feed, tokens: tokens, clock: clock, slippageBPS: DefaultSlippageBPS}
}

// SlippageBPS returns the configured haircut.
func (e *Estimator) SlippageBPS() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.slippageBPS
}

// SetSlippageBPS updates the haircut. Bounds are exclusive: a zero haircut
// disables the protection silently and 10000 forces a zero minimum.
func (e *Estimator) SetSlippageBPS(bps uint32) error {
	if bps == 0 || bps >= 10000 {
		return fmt.Errorf("%w: got %d", ErrSlippageOutOfRange, bps)
	}
	e.mu.Lock()
	e.slippageBPS = bps
	e.mu.Unlock()
	return nil
}

// reading is one normalized feed observation.
type reading struct {
	price    *big.Int
	decimals uint8
	usable   bool
}

func (e *Estimator) read(token common.Address) reading {
	price, updatedAt, decimals, err := e.feed.LatestPrice(token)
	if err != nil || price == nil || price.Sign() <= 0 {
		return reading{decimals: defaultPriceDecimals}
	}
	if e.clock.Now().Sub(updatedAt) > StaleAfter {
		return reading{decimals: decimals}
	}
	return reading{price: price, decimals: decimals, usable: true}
}

// Estimate returns the minimum acceptable buy amount for selling sellAmount
// of sellToken against buyToken.
//
// Fallbacks: a stale or missing sell-side price is treated as exactly 1.0
// (the sell asset is assumed to be a stable reference); a stale or missing
// buy-side price collapses the floor to the smallest positive unit, letting
// the trade proceed unprotected rather than blocking it.
func (e *Estimator) Estimate(sellToken common.Address, sellAmount *big.Int, buyToken common.Address) (*big.Int, error) {
	sell := e.read(sellToken)
	if !sell.usable {
		sell.price = pow10(int(sell.decimals)) // unit price 1.0
		sell.usable = true
	}

	buy := e.read(buyToken)
	if !buy.usable {
		return big.NewInt(1), nil
	}

	// Rescale both prices to the smaller precision of the pair.
	prec := sell.decimals
	if buy.decimals < prec {
		prec = buy.decimals
	}
	sellPrice := rescale(sell.price, sell.decimals, prec)
	buyPrice := rescale(buy.price, buy.decimals, prec)
	if buyPrice.Sign() == 0 {
		return nil, ErrPriceVanishes
	}

	// Cross rate adjusted for token display decimals:
	// buy = sell * pSell * 10^decBuy / (pBuy * 10^decSell)
	num := new(big.Int).Mul(sellAmount, sellPrice)
	num.Mul(num, pow10(int(e.tokens.Decimals(buyToken))))
	den := new(big.Int).Mul(buyPrice, pow10(int(e.tokens.Decimals(sellToken))))
	out := num.Div(num, den)

	// Slippage haircut.
	bps := int64(e.SlippageBPS())
	out.Mul(out, big.NewInt(10000-bps))
	out.Div(out, big.NewInt(10000))
	return out, nil
}

func rescale(price *big.Int, from, to uint8) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(price)
	case from > to:
		return new(big.Int).Div(price, pow10(int(from-to)))
	default:
		return new(big.Int).Mul(price, pow10(int(to-from)))
	}
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
