// Package pool implements the two-asset weighted pool engine used to seed
// liquidity bootstrapping pools: deterministic pool addresses, init joins
// that mint the pool receipt token, proportional exits, and linear weight
// schedules. Pool receipts are ordinary ledger tokens whose address equals
// the pool address.
package pool

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crclabs/backingd/internal/core/backing"
)

var (
	ErrPoolUnknown        = errors.New("pool: unknown pool")
	ErrPoolInitialized    = errors.New("pool: already initialized")
	ErrPoolNotInitialized = errors.New("pool: not initialized")
	ErrIdenticalTokens    = errors.New("pool: tokens must differ")
	ErrTokenOrder         = errors.New("pool: join tokens do not match pool order")
	ErrBadWeights         = errors.New("pool: weights must be positive and sum to one")
	ErrBadSwapFee         = errors.New("pool: swap fee out of range")
	ErrBadSchedule        = errors.New("pool: weight schedule end before start")
	ErrZeroJoin           = errors.New("pool: init join needs both amounts")
)

var (
	one = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// maxSwapFee caps fees at 10%, minWeight keeps either side above 1%.
	maxSwapFee = new(big.Int).Div(one, big.NewInt(10))
	minWeight  = new(big.Int).Div(one, big.NewInt(100))

	// initSupply is the receipt supply minted on the init join; bootstrapBPT
	// of it is parked on the null address so the supply can never drain to
	// zero while the pool holds funds.
	initSupply   = new(big.Int).Mul(big.NewInt(100), one)
	bootstrapBPT = big.NewInt(1_000_000)
)

// Ledger is the token backend pools settle against.
type Ledger interface {
	BalanceOf(owner, token common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
	PullFunds(token, from, to, spender common.Address, amount *big.Int) error
	Mint(token, to common.Address, amount *big.Int)
	Burn(token, owner common.Address, amount *big.Int) error
}

type schedule struct {
	start, end               int64
	startWeights, endWeights [2]*big.Int
}

type state struct {
	tokens      [2]common.Address
	swapFee     *big.Int
	owner       common.Address
	swapEnabled bool
	initialized bool
	totalSupply *big.Int
	sched       schedule
}

// Engine manages all pools against one ledger.
type Engine struct {
	mu sync.RWMutex

	ledger Ledger
	clock  backing.Clock

	pools map[common.Address]*state
	nonce uint64
}

// New creates an engine. The clock drives weight interpolation.
func New(ledger Ledger, clock backing.Clock) *Engine {
	return &Engine{
		ledger: ledger,
		clock:  clock,
		pools:  make(map[common.Address]*state),
	}
}

// CreatePool registers an empty weighted pool and returns its address, which
// doubles as the pool receipt token address.
func (e *Engine) CreatePool(tokens [2]common.Address, normalizedWeights [2]*big.Int, swapFee *big.Int, owner common.Address, swapEnabled bool) (common.Address, error) {
	if tokens[0] == tokens[1] {
		return common.Address{}, ErrIdenticalTokens
	}
	if err := checkWeights(normalizedWeights); err != nil {
		return common.Address{}, err
	}
	if swapFee == nil || swapFee.Sign() <= 0 || swapFee.Cmp(maxSwapFee) > 0 {
		return common.Address{}, ErrBadSwapFee
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.nonce++
	addr := poolAddress(tokens, owner, e.nonce)

	now := e.clock.Now().Unix()
	e.pools[addr] = &state{
		tokens:      tokens,
		swapFee:     new(big.Int).Set(swapFee),
		owner:       owner,
		swapEnabled: swapEnabled,
		totalSupply: new(big.Int),
		sched: schedule{
			start:        now,
			end:          now,
			startWeights: copyWeights(normalizedWeights),
			endWeights:   copyWeights(normalizedWeights),
		},
	}
	return addr, nil
}

// Join executes an init join: it pulls both token amounts from the sender
// under the pool's allowance and mints the receipt supply to the recipient,
// minus the bootstrap amount parked on the null address.
func (e *Engine) Join(pool, sender, recipient common.Address, req backing.JoinRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pools[pool]
	if !ok {
		return ErrPoolUnknown
	}
	if req.Kind != backing.JoinKindInit {
		return fmt.Errorf("pool: unsupported join kind %d", req.Kind)
	}
	if p.initialized {
		return ErrPoolInitialized
	}
	if req.Tokens != p.tokens {
		return ErrTokenOrder
	}
	for _, amt := range req.MaxAmountsIn {
		if amt == nil || amt.Sign() <= 0 {
			return ErrZeroJoin
		}
	}

	for i, token := range req.Tokens {
		if err := e.ledger.PullFunds(token, sender, pool, pool, req.MaxAmountsIn[i]); err != nil {
			if i == 1 {
				// Give back the first leg so a half-pulled join cannot stick.
				_ = e.ledger.Transfer(req.Tokens[0], pool, sender, req.MaxAmountsIn[0])
			}
			return fmt.Errorf("pool: pull %s: %w", token.Hex(), err)
		}
	}

	p.initialized = true
	p.totalSupply = new(big.Int).Set(initSupply)
	e.ledger.Mint(pool, common.Address{}, bootstrapBPT)
	e.ledger.Mint(pool, recipient, new(big.Int).Sub(initSupply, bootstrapBPT))
	return nil
}

// Exit burns receipt tokens and pays out the proportional share of both pool
// balances to the recipient.
func (e *Engine) Exit(pool, sender, recipient common.Address, receiptAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pools[pool]
	if !ok {
		return ErrPoolUnknown
	}
	if !p.initialized {
		return ErrPoolNotInitialized
	}
	if receiptAmount == nil || receiptAmount.Sign() <= 0 {
		return fmt.Errorf("pool: exit amount must be positive")
	}

	if err := e.ledger.Burn(pool, sender, receiptAmount); err != nil {
		return fmt.Errorf("pool: exit: %w", err)
	}

	for _, token := range p.tokens {
		held := e.ledger.BalanceOf(pool, token)
		out := new(big.Int).Mul(held, receiptAmount)
		out.Div(out, p.totalSupply)
		if err := e.ledger.Transfer(token, pool, recipient, out); err != nil {
			return fmt.Errorf("pool: exit payout %s: %w", token.Hex(), err)
		}
	}
	p.totalSupply.Sub(p.totalSupply, receiptAmount)
	return nil
}

// ScheduleWeightChange installs a linear weight schedule from the pool's
// current weights to endWeights over [start, end].
func (e *Engine) ScheduleWeightChange(pool common.Address, start, end time.Time, endWeights [2]*big.Int) error {
	if err := checkWeights(endWeights); err != nil {
		return err
	}
	if end.Before(start) {
		return ErrBadSchedule
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pools[pool]
	if !ok {
		return ErrPoolUnknown
	}
	p.sched = schedule{
		start:        start.Unix(),
		end:          end.Unix(),
		startWeights: e.weightsAtLocked(p, start.Unix()),
		endWeights:   copyWeights(endWeights),
	}
	return nil
}

// NormalizedWeights returns the pool's weights at the engine clock's now.
func (e *Engine) NormalizedWeights(pool common.Address) ([2]*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[pool]
	if !ok {
		return [2]*big.Int{}, ErrPoolUnknown
	}
	return e.weightsAtLocked(p, e.clock.Now().Unix()), nil
}

// WeightsAt returns the interpolated weights at an arbitrary instant.
func (e *Engine) WeightsAt(pool common.Address, at time.Time) ([2]*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[pool]
	if !ok {
		return [2]*big.Int{}, ErrPoolUnknown
	}
	return e.weightsAtLocked(p, at.Unix()), nil
}

// Tokens returns the pool's token pair in creation order.
func (e *Engine) Tokens(pool common.Address) ([2]common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[pool]
	if !ok {
		return [2]common.Address{}, ErrPoolUnknown
	}
	return p.tokens, nil
}

// TotalSupply returns the outstanding receipt supply.
func (e *Engine) TotalSupply(pool common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.pools[pool]; ok {
		return new(big.Int).Set(p.totalSupply)
	}
	return new(big.Int)
}

// SwapEnabled reports whether trading against the pool is on.
func (e *Engine) SwapEnabled(pool common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[pool]
	return ok && p.swapEnabled
}

func (e *Engine) weightsAtLocked(p *state, at int64) [2]*big.Int {
	s := p.sched
	switch {
	case at <= s.start:
		return copyWeights(s.startWeights)
	case at >= s.end:
		return copyWeights(s.endWeights)
	}

	elapsed := big.NewInt(at - s.start)
	window := big.NewInt(s.end - s.start)

	var out [2]*big.Int
	for i := range out {
		delta := new(big.Int).Sub(s.endWeights[i], s.startWeights[i])
		delta.Mul(delta, elapsed)
		delta.Quo(delta, window)
		out[i] = new(big.Int).Add(s.startWeights[i], delta)
	}
	return out
}

func checkWeights(w [2]*big.Int) error {
	sum := new(big.Int)
	for _, x := range w {
		if x == nil || x.Cmp(minWeight) < 0 {
			return ErrBadWeights
		}
		sum.Add(sum, x)
	}
	if sum.Cmp(one) != 0 {
		return ErrBadWeights
	}
	return nil
}

func copyWeights(w [2]*big.Int) [2]*big.Int {
	return [2]*big.Int{new(big.Int).Set(w[0]), new(big.Int).Set(w[1])}
}

// poolAddress derives the receipt token address from the pair, the owner and
// a creation nonce.
func poolAddress(tokens [2]common.Address, owner common.Address, nonce uint64) common.Address {
	n := new(big.Int).SetUint64(nonce)
	return common.BytesToAddress(crypto.Keccak256(
		[]byte("weighted-pool"),
		tokens[0].Bytes(),
		tokens[1].Bytes(),
		owner.Bytes(),
		common.BigToHash(n).Bytes(),
	)[12:])
}
