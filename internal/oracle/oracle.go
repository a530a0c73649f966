// Package oracle is the price feed registry the buy-amount estimator reads.
// Prices are pushed by an admin or an off-process reporter and served with
// their observation timestamp so consumers can apply their own staleness
// policy.
package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultPriceDecimals matches the convention of mainstream USD feeds.
const DefaultPriceDecimals uint8 = 8

var (
	ErrNoFeed         = errors.New("oracle: no feed for token")
	ErrCallerNotAdmin = errors.New("oracle: caller is not the admin")
	ErrBadPrice       = errors.New("oracle: price must be non-negative")
)

type quote struct {
	price     *big.Int
	updatedAt time.Time
	decimals  uint8
}

// Registry stores the latest USD quote per token.
type Registry struct {
	mu     sync.RWMutex
	admin  common.Address
	quotes map[common.Address]quote
}

// New creates a registry administered by admin.
func New(admin common.Address) *Registry {
	return &Registry{
		admin:  admin,
		quotes: make(map[common.Address]quote),
	}
}

// Report records a price observation. Zero is allowed and signals to
// consumers that the feed currently has no usable value.
func (r *Registry) Report(caller, token common.Address, price *big.Int, decimals uint8, at time.Time) error {
	if caller != r.admin {
		return ErrCallerNotAdmin
	}
	if price == nil || price.Sign() < 0 {
		return ErrBadPrice
	}
	r.mu.Lock()
	r.quotes[token] = quote{
		price:     new(big.Int).Set(price),
		updatedAt: at,
		decimals:  decimals,
	}
	r.mu.Unlock()
	return nil
}

// LatestPrice returns the stored quote for a token.
func (r *Registry) LatestPrice(token common.Address) (*big.Int, time.Time, uint8, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotes[token]
	if !ok {
		return nil, time.Time{}, 0, fmt.Errorf("%w: %s", ErrNoFeed, token.Hex())
	}
	return new(big.Int).Set(q.price), q.updatedAt, q.decimals, nil
}

// Tokens lists every token with a stored quote.
func (r *Registry) Tokens() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.quotes))
	for token := range r.quotes {
		out = append(out, token)
	}
	return out
}
