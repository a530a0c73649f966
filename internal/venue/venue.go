// Package venue implements the batch-auction settlement venue: conditional
// order registration and discovery, pre-signature authorization, and
// fill-or-kill settlement against venue liquidity. Orders are matched
// off-chain; this package models the on-chain settlement surface the backing
// core depends on.
package venue

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/order"
	"github.com/crclabs/backingd/internal/crypto"
)

var (
	ErrOrderExists      = errors.New("venue: order uid already registered")
	ErrOrderUnknown     = errors.New("venue: order uid not registered")
	ErrOrderNotOwned    = errors.New("venue: caller does not own this order")
	ErrOrderNotSigned   = errors.New("venue: order has no pre-signature")
	ErrOrderFilled      = errors.New("venue: order already filled")
	ErrFillBelowMinimum = errors.New("venue: fill is below the order's minimum buy amount")
	ErrBadSignature     = errors.New("venue: signature does not recover to the order owner")
)

// Ledger is the balance mover the settlement layer uses for both legs.
type Ledger interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
	BalanceOf(owner, token common.Address) *big.Int
}

// registered is one conditional order as the venue tracks it.
type registered struct {
	owner     common.Address
	params    order.StaticParams
	appData   string
	preSigned bool
	filled    *big.Int
}

// Venue holds the order book and a settlement account funded with the
// liquidity fills are paid from.
type Venue struct {
	mu sync.RWMutex

	ledger     Ledger
	env        order.Env
	settlement common.Address

	orders map[order.UID]*registered
}

// New creates a venue. env is consulted on every settlement poll; the
// settlement account pays the buy leg and receives the sell leg.
func New(ledger Ledger, env order.Env, settlement common.Address) *Venue {
	return &Venue{
		ledger:     ledger,
		env:        env,
		settlement: settlement,
		orders:     make(map[order.UID]*registered),
	}
}

// SettlementAccount returns the venue's liquidity identity.
func (v *Venue) SettlementAccount() common.Address { return v.settlement }

// RegisterOrder announces a conditional order for discovery. The uid is
// derived from the owner and static parameters, so re-registering identical
// terms is rejected.
func (v *Venue) RegisterOrder(owner common.Address, params order.StaticParams, appData string) error {
	uid := uidFor(owner, params)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.orders[uid]; ok {
		return fmt.Errorf("%w: %s", ErrOrderExists, uid.Hex())
	}
	v.orders[uid] = &registered{
		owner:   owner,
		params:  params,
		appData: appData,
		filled:  new(big.Int),
	}
	return nil
}

// SetPreSignature marks an order executable without a cryptographic
// signature. Only the order's owner may flip the flag.
func (v *Venue) SetPreSignature(owner common.Address, uid order.UID, signed bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[uid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderUnknown, uid.Hex())
	}
	if o.owner != owner {
		return ErrOrderNotOwned
	}
	o.preSigned = signed
	return nil
}

// SignOrder authorizes an order with an ECDSA signature over its uid digest.
// The signature must recover to the order's owner; unlike SetPreSignature the
// caller does not need to be the owner itself.
func (v *Venue) SignOrder(uid order.UID, sig []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[uid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderUnknown, uid.Hex())
	}
	if !crypto.VerifyDigest(o.owner, uid.Digest(), sig) {
		return ErrBadSignature
	}
	o.preSigned = true
	return nil
}

// FilledAmount returns the buy-side fill for a uid; zero means unfilled and
// is also returned for unknown uids.
func (v *Venue) FilledAmount(uid order.UID) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if o, ok := v.orders[uid]; ok {
		return new(big.Int).Set(o.filled)
	}
	return new(big.Int)
}

// Evaluate runs the conditional-order hook for a registered uid, exactly as
// the off-chain relayer does before proposing a fill.
func (v *Venue) Evaluate(uid order.UID, now time.Time) (order.Terms, error) {
	v.mu.RLock()
	o, ok := v.orders[uid]
	v.mu.RUnlock()
	if !ok {
		return order.Terms{}, fmt.Errorf("%w: %s", ErrOrderUnknown, uid.Hex())
	}
	return order.Evaluate(o.owner, o.params, v.env, now)
}

// Fill settles an order fill-or-kill at the given buy amount. The order must
// be pre-signed, must still evaluate cleanly, and the fill may not be below
// the order's minimum. The sell leg moves owner→settlement, the buy leg
// settlement→receiver, both in direct-balance mode.
func (v *Venue) Fill(uid order.UID, buyAmount *big.Int, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	o, ok := v.orders[uid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderUnknown, uid.Hex())
	}
	if o.filled.Sign() > 0 {
		return ErrOrderFilled
	}
	if !o.preSigned {
		return ErrOrderNotSigned
	}

	terms, err := order.Evaluate(o.owner, o.params, v.env, now)
	if err != nil {
		return err
	}
	if buyAmount.Cmp(terms.BuyAmount) < 0 {
		return fmt.Errorf("%w: fill %s < min %s", ErrFillBelowMinimum, buyAmount, terms.BuyAmount)
	}

	if err := v.ledger.Transfer(terms.SellToken, o.owner, v.settlement, terms.SellAmount); err != nil {
		return fmt.Errorf("venue: sell leg: %w", err)
	}
	if err := v.ledger.Transfer(terms.BuyToken, v.settlement, terms.Receiver, buyAmount); err != nil {
		// Restore the sell leg so a liquidity shortfall is not destructive.
		_ = v.ledger.Transfer(terms.SellToken, v.settlement, o.owner, terms.SellAmount)
		return fmt.Errorf("venue: buy leg: %w", err)
	}

	o.filled = new(big.Int).Set(buyAmount)
	return nil
}

// uidFor mirrors the core's uid derivation for a registered parameter set.
func uidFor(owner common.Address, p order.StaticParams) order.UID {
	return order.Build(owner, p.SellToken, p.SellAmount, p.BuyToken, p.BuyAmount, p.ValidTo, p.AppData).UID()
}
