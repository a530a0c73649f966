package backing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/order"
)

// Event is a state-change notification consumed by off-chain indexers.
type Event interface {
	Name() string
}

// EventSink receives events as operations commit. Implementations must not
// fail: indexing is best-effort and never blocks a state transition.
type EventSink interface {
	Emit(e Event)
}

// InstanceDeployed is emitted once per backer when the factory deploys the
// counterfactual instance.
type InstanceDeployed struct {
	Backer         common.Address
	Instance       common.Address
	BackingAsset   common.Address
	PersonalToken  common.Address
	StableAmount   *big.Int
	PersonalAmount *big.Int
}

func (InstanceDeployed) Name() string { return "InstanceDeployed" }

// OrderInitiated is emitted when the instance pre-authorizes its order.
type OrderInitiated struct {
	Instance   common.Address
	OrderUID   order.UID
	SellAmount *big.Int
	BuyAmount  *big.Int
	ValidTo    int64
}

func (OrderInitiated) Name() string { return "OrderInitiated" }

// OrderReset is emitted when an unfilled order is re-derived.
type OrderReset struct {
	Instance common.Address
	OldUID   order.UID
	NewUID   order.UID
}

func (OrderReset) Name() string { return "OrderReset" }

// PoolCreated is emitted when the instance seeds its pool. Fallback is true
// when the order expired unfilled and the stable escrow was used instead of
// the intended backing asset.
type PoolCreated struct {
	Instance     common.Address
	Pool         common.Address
	Contribution common.Address
	Amount       *big.Int
	Fallback     bool
	UnlockAt     int64
}

func (PoolCreated) Name() string { return "PoolCreated" }

// PoolTokensReleased is emitted by the factory on behalf of an instance when
// the pool receipt leaves escrow. Purely an indexing convenience.
type PoolTokensReleased struct {
	Backer    common.Address
	Instance  common.Address
	Pool      common.Address
	Recipient common.Address
	Amount    *big.Int
}

func (PoolTokensReleased) Name() string { return "PoolTokensReleased" }

// AssetSupportChanged is emitted on admin toggles of the supported set.
type AssetSupportChanged struct {
	Asset     common.Address
	Supported bool
}

func (AssetSupportChanged) Name() string { return "AssetSupportChanged" }

// GlobalReleaseSet is emitted when the admin overrides all instance locks.
type GlobalReleaseSet struct {
	Timestamp int64
}

func (GlobalReleaseSet) Name() string { return "GlobalReleaseSet" }
