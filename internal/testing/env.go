// Package testing provides the in-process protocol environment scenario
// tests run against: a wired hub, venue, pool engine, oracle, estimator and
// factory, plus a manual clock and an event recorder.
package testing

import (
	"math/big"
	stdtesting "testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crclabs/backingd/internal/core/backing"
	"github.com/crclabs/backingd/internal/core/deriver"
	"github.com/crclabs/backingd/internal/core/estimator"
	"github.com/crclabs/backingd/internal/hub"
	"github.com/crclabs/backingd/internal/oracle"
	"github.com/crclabs/backingd/internal/pool"
	"github.com/crclabs/backingd/internal/venue"
)

// Well-known environment identities.
var (
	EnvHubAddress        = common.HexToAddress("0x0000000000000000000000000000000000000100")
	EnvFactoryAddress    = common.HexToAddress("0x0000000000000000000000000000000000000200")
	EnvAdminAddress      = common.HexToAddress("0x0000000000000000000000000000000000000300")
	EnvSettlementAddress = common.HexToAddress("0x0000000000000000000000000000000000000400")
	EnvStableToken       = common.HexToAddress("0x0000000000000000000000000000000000000500")
	EnvBackingAsset      = common.HexToAddress("0x0000000000000000000000000000000000000600")
)

// Env is a fully wired protocol instance for tests.
type Env struct {
	T *stdtesting.T

	Clock     *ManualClock
	Hub       *hub.Hub
	Oracle    *oracle.Registry
	Estimator *estimator.Estimator
	Pools     *pool.Engine
	Venue     *venue.Venue
	Factory   *backing.Factory
	Events    *EventRecorder

	Config backing.Config
}

// venueEnv adapts the hub and factory into the order evaluation view.
type venueEnv struct {
	hub     *hub.Hub
	factory *backing.Factory
}

func (v *venueEnv) BalanceOf(owner, token common.Address) *big.Int {
	return v.hub.BalanceOf(owner, token)
}

func (v *venueEnv) IsSupportedAsset(token common.Address) bool {
	return v.factory.IsSupportedAsset(token)
}

// NewEnv wires the whole stack: a hub with the factory's deposit callback
// installed, a venue whose evaluation hook reads hub balances and factory
// asset support, a pool engine, and an oracle primed with sane prices for
// the stable token (6 decimals, $1) and the default backing asset
// (8 decimals, $50,000).
func NewEnv(t *stdtesting.T) *Env {
	t.Helper()

	clock := NewManualClock()
	h := hub.New(EnvHubAddress)
	reg := oracle.New(EnvAdminAddress)
	est := estimator.New(reg, h, clock)
	pools := pool.New(h, clock)
	events := NewEventRecorder()

	h.RegisterToken(EnvStableToken, 6)
	h.RegisterToken(EnvBackingAsset, 8)

	cfg := backing.Config{
		Address:                 EnvFactoryAddress,
		Admin:                   EnvAdminAddress,
		LedgerAddress:           EnvHubAddress,
		StableToken:             EnvStableToken,
		RequiredStableAmount:    backing.DefaultRequiredStableAmount,
		PersonalTokenCommitment: backing.DefaultPersonalTokenCommitment,
		Fingerprint:             deriver.CodeFingerprint(crypto.Keccak256Hash([]byte("backing-instance-v1"))),
		OrderValidity:           backing.DefaultOrderValidity,
		LockDuration:            backing.DefaultLockDuration,
		WeightShiftDuration:     backing.DefaultWeightShiftDuration,
		SwapFee:                 backing.DefaultSwapFee,
	}

	ve := &venueEnv{hub: h}
	v := venue.New(h, ve, EnvSettlementAddress)

	factory := backing.NewFactory(cfg, backing.Services{
		Ledger:    h,
		Venue:     v,
		Pools:     pools,
		Estimator: est,
		Clock:     clock,
		Events:    events,
	})
	ve.factory = factory

	h.SetCallback(EnvFactoryAddress, func(operator, from common.Address, tokenID, amount *big.Int, data []byte) error {
		_, err := factory.OnDeposit(EnvHubAddress, operator, from, tokenID, amount, data)
		return err
	})

	env := &Env{
		T:         t,
		Clock:     clock,
		Hub:       h,
		Oracle:    reg,
		Estimator: est,
		Pools:     pools,
		Venue:     v,
		Factory:   factory,
		Events:    events,
		Config:    cfg,
	}

	env.SupportAsset(EnvBackingAsset)
	env.SetPrice(EnvStableToken, big.NewInt(100_000_000), 8)        // $1.00
	env.SetPrice(EnvBackingAsset, big.NewInt(5_000_000_000_000), 8) // $50,000
	return env
}

// SupportAsset enables a backing asset as the admin.
func (e *Env) SupportAsset(asset common.Address) {
	e.T.Helper()
	if err := e.Factory.SetSupportedAsset(EnvAdminAddress, asset, true); err != nil {
		e.T.Fatalf("support asset: %v", err)
	}
}

// SetPrice reports an oracle quote observed at the clock's current time.
func (e *Env) SetPrice(token common.Address, price *big.Int, decimals uint8) {
	e.T.Helper()
	if err := e.Oracle.Report(EnvAdminAddress, token, price, decimals, e.Clock.Now()); err != nil {
		e.T.Fatalf("report price: %v", err)
	}
}

// NewBacker registers a human avatar holding the personal-token commitment
// and a funded, factory-approved stable balance.
func (e *Env) NewBacker(addr common.Address) common.Address {
	e.T.Helper()
	if err := e.Hub.RegisterAvatar(addr, true); err != nil {
		e.T.Fatalf("register avatar: %v", err)
	}
	e.Hub.Mint(addr, addr, e.Config.PersonalTokenCommitment)
	e.Hub.Mint(e.Config.StableToken, addr, e.Config.RequiredStableAmount)
	if err := e.Hub.Approve(e.Config.StableToken, addr, EnvFactoryAddress, e.Config.RequiredStableAmount); err != nil {
		e.T.Fatalf("approve stable: %v", err)
	}
	return addr
}

// Deposit performs the personal-token transfer that triggers OnDeposit.
func (e *Env) Deposit(backer, asset common.Address) error {
	return e.Hub.TransferWithCallback(
		backer, backer, EnvFactoryAddress,
		hub.TokenIDForAvatar(backer), e.Config.PersonalTokenCommitment, asset.Bytes(),
	)
}

// MustDeposit is Deposit, failing the test on error, returning the instance.
func (e *Env) MustDeposit(backer, asset common.Address) *backing.Instance {
	e.T.Helper()
	if err := e.Deposit(backer, asset); err != nil {
		e.T.Fatalf("deposit: %v", err)
	}
	inst, ok := e.Factory.Instance(e.Factory.DeriveInstanceAddress(backer))
	if !ok {
		e.T.Fatalf("deposit succeeded but no instance recorded")
	}
	return inst
}

// FundSettlement gives the venue's liquidity account buy-side inventory.
func (e *Env) FundSettlement(token common.Address, amount *big.Int) {
	e.Hub.Mint(token, EnvSettlementAddress, amount)
}

// FillOrder settles an instance's live order at the given buy amount.
func (e *Env) FillOrder(inst *backing.Instance, buyAmount *big.Int) error {
	return e.Venue.Fill(inst.OrderUID(), buyAmount, e.Clock.Now())
}

// EventRecorder collects emitted events for assertions.
type EventRecorder struct {
	events []backing.Event
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder { return &EventRecorder{} }

// Emit appends the event.
func (r *EventRecorder) Emit(e backing.Event) { r.events = append(r.events, e) }

// All returns every recorded event in emission order.
func (r *EventRecorder) All() []backing.Event { return r.events }

// OfName returns the recorded events with the given name.
func (r *EventRecorder) OfName(name string) []backing.Event {
	var out []backing.Event
	for _, e := range r.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event with the given name, or nil.
func (r *EventRecorder) Last(name string) backing.Event {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name() == name {
			return r.events[i]
		}
	}
	return nil
}
