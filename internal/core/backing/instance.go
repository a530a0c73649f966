package backing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/order"
)

// Instance is the per-backer state machine. Lifecycle:
//
//	Funded → OrderPending → OrderResolved → PoolCreated → Released
//
// OrderPending/OrderResolved may be revisited through ResetOrder until the
// pool exists; everything after that is strictly forward and one-shot.
type Instance struct {
	factory *Factory

	// Immutable after construction.
	address        common.Address
	backer         common.Address
	backingAsset   common.Address
	personalToken  common.Address
	personalAmount *big.Int
	stableAmount   *big.Int

	// Order state. staticParams is retained so resets and expiry checks can
	// re-derive terms without the factory re-staging anything.
	orderUID     order.UID
	staticParams order.StaticParams

	// poolAddress transitions zero→non-zero exactly once.
	poolAddress common.Address

	// poolUnlockTimestamp transitions zero→non-zero→zero exactly once per
	// instance lifetime. Zeroing it is what makes release one-shot.
	poolUnlockTimestamp int64
}

// instanceParams carries constructor arguments. The source platform passes
// these through a transient staging channel because its creation scheme
// cannot take dynamic arguments; here they are ordinary constructor inputs.
type instanceParams struct {
	address        common.Address
	backer         common.Address
	backingAsset   common.Address
	personalToken  common.Address
	personalAmount *big.Int
	stableAmount   *big.Int
}

func newInstance(f *Factory, p instanceParams) *Instance {
	return &Instance{
		factory:        f,
		address:        p.address,
		backer:         p.backer,
		backingAsset:   p.backingAsset,
		personalToken:  p.personalToken,
		personalAmount: p.personalAmount,
		stableAmount:   p.stableAmount,
	}
}

// Accessors for external readers (RPC, indexers, tests).

func (in *Instance) Address() common.Address        { return in.address }
func (in *Instance) Backer() common.Address         { return in.backer }
func (in *Instance) BackingAsset() common.Address   { return in.backingAsset }
func (in *Instance) PersonalToken() common.Address  { return in.personalToken }
func (in *Instance) PersonalAmount() *big.Int       { return new(big.Int).Set(in.personalAmount) }
func (in *Instance) StableAmount() *big.Int         { return new(big.Int).Set(in.stableAmount) }
func (in *Instance) OrderUID() order.UID            { return in.orderUID }
func (in *Instance) OrderParams() order.StaticParams { return in.staticParams }
func (in *Instance) PoolAddress() common.Address    { return in.poolAddress }
func (in *Instance) PoolUnlockTimestamp() int64     { return in.poolUnlockTimestamp }

// InitiateOrder records the order uid and pre-authorizes it at the venue.
// Factory only. Not idempotent: the factory's single-call deployment flow is
// the only caller, so a repeated call would simply re-authorize.
func (in *Instance) InitiateOrder(caller common.Address, params order.StaticParams, uid order.UID) error {
	if caller != in.factory.Address() {
		return ErrCallerNotFactory
	}
	in.orderUID = uid
	in.staticParams = params
	if err := in.factory.svc.Venue.SetPreSignature(in.address, uid, true); err != nil {
		return fmt.Errorf("backing: pre-sign order: %w", err)
	}
	in.factory.svc.Events.Emit(OrderInitiated{
		Instance:   in.address,
		OrderUID:   uid,
		SellAmount: new(big.Int).Set(params.SellAmount),
		BuyAmount:  new(big.Int).Set(params.BuyAmount),
		ValidTo:    params.ValidTo,
	})
	return nil
}

// ResetOrder re-derives the order terms, typically after an oracle price
// move, as long as the registered order has not been filled. The new uid
// must differ from the stored one; re-registering identical terms would be
// a no-op at the venue and is rejected.
func (in *Instance) ResetOrder() error {
	if in.poolAddress != (common.Address{}) {
		return ErrLBPAlreadyCreated
	}
	if filled := in.factory.svc.Venue.FilledAmount(in.orderUID); filled.Sign() > 0 {
		return ErrOrderAlreadySettled
	}

	params, doc, err := in.factory.buildOrderParams(in.address, in.backingAsset)
	if err != nil {
		return err
	}
	newUID := order.Build(in.address, params.SellToken, params.SellAmount, params.BuyToken, params.BuyAmount, params.ValidTo, params.AppData).UID()
	if newUID == in.orderUID {
		return ErrOrderUidIsTheSame
	}

	if err := in.factory.svc.Venue.RegisterOrder(in.address, params, doc.Content); err != nil {
		return fmt.Errorf("backing: re-register order: %w", err)
	}
	if err := in.factory.svc.Venue.SetPreSignature(in.address, newUID, true); err != nil {
		return fmt.Errorf("backing: pre-sign reset order: %w", err)
	}

	oldUID := in.orderUID
	in.orderUID = newUID
	in.staticParams = params
	in.factory.svc.Events.Emit(OrderReset{Instance: in.address, OldUID: oldUID, NewUID: newUID})
	return nil
}

// CreatePool resolves the settlement outcome and seeds the pool. Callable by
// anyone: the action is economically neutral and gated by venue state and
// time, not by caller identity.
//
// Outcome branches:
//   - Filled: the instance's actual backing-asset balance funds the pool.
//   - Expired unfilled: the stable escrow itself funds the pool, so the flow
//     always completes instead of stalling forever.
func (in *Instance) CreatePool() error {
	if in.poolAddress != (common.Address{}) {
		return ErrLBPAlreadyCreated
	}

	svc := in.factory.svc
	now := svc.Clock.Now()
	outcome := in.settlementOutcome(now.Unix())

	var contribution common.Address
	var amount *big.Int
	switch o := outcome.(type) {
	case orderFilled:
		have := svc.Ledger.BalanceOf(in.address, in.backingAsset)
		// The venue reports a fill but the asset may not have arrived;
		// refuse to seed the pool out of thin air.
		if have.Cmp(o.amount) < 0 {
			return &InsufficientBackingAssetError{Have: have, Want: new(big.Int).Set(o.amount)}
		}
		contribution, amount = in.backingAsset, have
	case orderExpired:
		contribution, amount = in.factory.cfg.StableToken, new(big.Int).Set(in.stableAmount)
	default:
		return ErrOrderNotYetFilled
	}

	pool, req, err := in.factory.BuildPoolJoinParams(in.address, in.personalToken, in.PersonalAmount(), contribution, amount)
	if err != nil {
		return err
	}

	if err := svc.Ledger.Approve(contribution, in.address, pool, amount); err != nil {
		return fmt.Errorf("backing: approve contribution: %w", err)
	}
	if err := svc.Ledger.Approve(in.personalToken, in.address, pool, in.personalAmount); err != nil {
		return fmt.Errorf("backing: approve personal token: %w", err)
	}
	if err := svc.Pools.Join(pool, in.address, in.address, req); err != nil {
		return fmt.Errorf("backing: join pool: %w", err)
	}

	endWeights := [2]*big.Int{WeightFinal, WeightFinal}
	if err := svc.Pools.ScheduleWeightChange(pool, now, now.Add(in.factory.cfg.WeightShiftDuration), endWeights); err != nil {
		return fmt.Errorf("backing: schedule weight shift: %w", err)
	}

	in.poolAddress = pool
	in.poolUnlockTimestamp = now.Add(in.factory.cfg.LockDuration).Unix()

	_, fallback := outcome.(orderExpired)
	svc.Events.Emit(PoolCreated{
		Instance:     in.address,
		Pool:         pool,
		Contribution: contribution,
		Amount:       new(big.Int).Set(amount),
		Fallback:     fallback,
		UnlockAt:     in.poolUnlockTimestamp,
	})
	return nil
}

// settlementOutcome classifies the order's venue state at a point in time.
type settlementOutcome interface{ settlementOutcome() }

type orderFilled struct{ amount *big.Int }
type orderExpired struct{}
type orderOpen struct{}

func (orderFilled) settlementOutcome()  {}
func (orderExpired) settlementOutcome() {}
func (orderOpen) settlementOutcome()    {}

func (in *Instance) settlementOutcome(nowUnix int64) settlementOutcome {
	if filled := in.factory.svc.Venue.FilledAmount(in.orderUID); filled.Sign() > 0 {
		return orderFilled{amount: filled}
	}
	if nowUnix > in.staticParams.ValidTo {
		return orderExpired{}
	}
	return orderOpen{}
}

// ReleasePoolTokens hands the escrowed pool receipt to the recipient once
// the instance lock or the factory's global override has passed. Backer
// only. Zeroing the unlock timestamp makes a second call transfer a zero
// balance; there is deliberately no explicit "already released" guard.
func (in *Instance) ReleasePoolTokens(caller, recipient common.Address) error {
	if caller != in.backer {
		return ErrCallerNotBacker
	}
	if in.poolAddress == (common.Address{}) {
		return ErrPoolNotCreated
	}

	now := in.factory.svc.Clock.Now().Unix()
	if now < in.poolUnlockTimestamp && now < in.factory.GlobalReleaseTimestamp() {
		return &LockedError{Until: in.poolUnlockTimestamp}
	}
	in.poolUnlockTimestamp = 0

	svc := in.factory.svc
	balance := svc.Ledger.BalanceOf(in.address, in.poolAddress)
	if err := svc.Ledger.Transfer(in.poolAddress, in.address, recipient, balance); err != nil {
		return fmt.Errorf("backing: transfer pool receipt: %w", err)
	}
	return in.factory.NotifyRelease(in.address, recipient, in.poolAddress, balance)
}
