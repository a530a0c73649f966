// Package backing implements the per-user backing state machine and the
// factory that coordinates it: deposit validation, deterministic instance
// deployment, conditional-order initiation, settlement-outcome branching,
// pool seeding, and time-locked release of pool receipts.
package backing

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/deriver"
	"github.com/crclabs/backingd/internal/core/estimator"
	"github.com/crclabs/backingd/internal/core/order"
)

// Ledger is the token hub the factory trusts. It tracks avatar identities,
// multi-token balances and allowances, and can wrap a raw personal-token
// balance into its transferable fungible representation.
type Ledger interface {
	// AvatarFromTokenID maps a ledger token id to the avatar it belongs to.
	AvatarFromTokenID(id *big.Int) common.Address

	// IsHuman reports whether the avatar is registered as an individual.
	IsHuman(avatar common.Address) bool

	// WrapPersonalToken converts `amount` of the avatar's raw personal-token
	// units held by `holder` into the transferable representation, crediting
	// holder, and returns the wrapped token address.
	WrapPersonalToken(avatar, holder common.Address, amount *big.Int) (common.Address, error)

	BalanceOf(owner, token common.Address) *big.Int
	Decimals(token common.Address) uint8

	// Transfer moves the caller-owned balance. A zero amount is a no-op.
	Transfer(token, from, to common.Address, amount *big.Int) error

	// PullFunds moves an allowance-gated balance on behalf of spender.
	PullFunds(token, from, to, spender common.Address, amount *big.Int) error

	// Approve lets spender pull up to amount of owner's token balance.
	Approve(token, owner, spender common.Address, amount *big.Int) error
}

// Venue is the settlement venue: off-chain matched, on-chain settled.
type Venue interface {
	// RegisterOrder announces a conditional order for off-chain discovery.
	// The venue polls the order's Evaluate hook with the given static params.
	RegisterOrder(owner common.Address, params order.StaticParams, appData string) error

	// SetPreSignature marks an order uid executable without a signature.
	SetPreSignature(owner common.Address, uid order.UID, signed bool) error

	// FilledAmount returns the buy-side fill for an order uid; zero means
	// unfilled.
	FilledAmount(uid order.UID) *big.Int
}

// JoinKind encodes the pool join flavor.
type JoinKind uint8

const (
	// JoinKindInit seeds an empty pool with its initial balances.
	JoinKindInit JoinKind = iota
)

// JoinRequest is the structured argument of PoolEngine.Join. Token order must
// match the order used at pool creation.
type JoinRequest struct {
	Tokens       [2]common.Address
	MaxAmountsIn [2]*big.Int
	Kind         JoinKind
	FromUnsafe   bool
}

// PoolEngine is the two-asset weighted pool engine. The pool receipt token
// address equals the pool address.
type PoolEngine interface {
	CreatePool(tokens [2]common.Address, normalizedWeights [2]*big.Int, swapFee *big.Int, owner common.Address, swapEnabled bool) (common.Address, error)
	Join(pool, sender, recipient common.Address, req JoinRequest) error
	ScheduleWeightChange(pool common.Address, start, end time.Time, endWeights [2]*big.Int) error
}

// Clock abstracts time so expiry, locks and overrides are testable.
type Clock interface {
	Now() time.Time
}

// Services groups the collaborators every backing operation needs.
type Services struct {
	Ledger    Ledger
	Venue     Venue
	Pools     PoolEngine
	Estimator *estimator.Estimator
	Clock     Clock
	Events    EventSink
}

// Config fixes the protocol constants for one factory deployment.
type Config struct {
	// Address is the factory's own identity.
	Address common.Address

	// Admin may toggle asset support, set the global release timestamp and
	// adjust estimator slippage. Single identity, no timelock.
	Admin common.Address

	// LedgerAddress is the only caller accepted by OnDeposit.
	LedgerAddress common.Address

	// StableToken is the escrow currency.
	StableToken common.Address

	// RequiredStableAmount is the fixed stable escrow per backing (pulled
	// from the depositor's allowance).
	RequiredStableAmount *big.Int

	// PersonalTokenCommitment is the exact personal-token deposit amount.
	PersonalTokenCommitment *big.Int

	// Fingerprint pins the instance code generation for address derivation.
	Fingerprint deriver.CodeFingerprint

	// OrderValidity bounds how long the swap order stays fillable.
	OrderValidity time.Duration

	// LockDuration is the pool-receipt escrow period after pool creation.
	LockDuration time.Duration

	// WeightShiftDuration is the LBP interpolation window toward 50/50.
	WeightShiftDuration time.Duration

	// SwapFee is the pool swap fee as an 18-decimal fixed-point fraction.
	SwapFee *big.Int
}

// Protocol defaults. One backing = 100 stable units against 48 personal
// tokens; day-long order window; year-long lock and weight shift; 1% fee.
var (
	DefaultRequiredStableAmount    = big.NewInt(100_000_000)                            // 100.00 at 6 decimals
	DefaultPersonalTokenCommitment = new(big.Int).Mul(big.NewInt(48), E18)              // 48 at 18 decimals
	DefaultSwapFee                 = new(big.Int).Div(E18, big.NewInt(100))             // 1%
	DefaultOrderValidity           = 24 * time.Hour
	DefaultLockDuration            = 365 * 24 * time.Hour
	DefaultWeightShiftDuration     = 365 * 24 * time.Hour

	// E18 is the fixed-point unit used for weights and fees.
	E18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// Initial LBP split favors the backing asset 90/10; the schedule drifts
	// to an even split.
	WeightPersonalInitial = new(big.Int).Div(E18, big.NewInt(10))                      // 10%
	WeightBackingInitial  = new(big.Int).Sub(E18, WeightPersonalInitial)               // 90%
	WeightFinal           = new(big.Int).Div(E18, big.NewInt(2))                       // 50%
)

// NeverRelease is the default global release timestamp: effectively never.
const NeverRelease = int64(math.MaxInt64)
