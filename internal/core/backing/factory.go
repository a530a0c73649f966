package backing

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/appdata"
	"github.com/crclabs/backingd/internal/core/deriver"
	"github.com/crclabs/backingd/internal/core/order"
)

// Factory validates inbound deposits, deploys instances at deterministic
// addresses, and enforces global asset-support and release policy. One
// factory per deployment generation; instances authenticate against it.
type Factory struct {
	cfg Config
	svc Services

	supportedAssets map[common.Address]bool
	instanceOwner   map[common.Address]common.Address
	instances       map[common.Address]*Instance

	// globalRelease overrides every instance lock once it passes. Defaults
	// to NeverRelease.
	globalRelease int64

	// depositBusy is the single transient re-entrancy flag of the deposit
	// entry point. Scope is exactly one top-level call.
	depositBusy bool
}

// NewFactory builds a factory with an empty supported-asset set.
func NewFactory(cfg Config, svc Services) *Factory {
	return &Factory{
		cfg:             cfg,
		svc:             svc,
		supportedAssets: make(map[common.Address]bool),
		instanceOwner:   make(map[common.Address]common.Address),
		instances:       make(map[common.Address]*Instance),
		globalRelease:   NeverRelease,
	}
}

// Address returns the factory identity used in address derivation.
func (f *Factory) Address() common.Address { return f.cfg.Address }

// Config exposes the deployment constants.
func (f *Factory) Config() Config { return f.cfg }

// DeriveInstanceAddress computes the counterfactual address for a backer.
// Off-chain tooling can call this before any deposit happens.
func (f *Factory) DeriveInstanceAddress(backer common.Address) common.Address {
	return deriver.InstanceAddress(f.cfg.Address, backer, f.cfg.Fingerprint)
}

// IsSupportedAsset reports current admin-enabled backing assets. Also serves
// the order evaluation hook, where support may have been revoked after
// registration.
func (f *Factory) IsSupportedAsset(asset common.Address) bool {
	return f.supportedAssets[asset]
}

// SupportedAssets returns the admin-enabled backing assets in address order.
func (f *Factory) SupportedAssets() []common.Address {
	out := make([]common.Address, 0, len(f.supportedAssets))
	for asset, ok := range f.supportedAssets {
		if ok {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Instance resolves a deployed instance by address.
func (f *Factory) Instance(addr common.Address) (*Instance, bool) {
	inst, ok := f.instances[addr]
	return inst, ok
}

// OwnerOf returns the backer recorded for an instance address; the zero
// address means "not one of ours".
func (f *Factory) OwnerOf(instance common.Address) common.Address {
	return f.instanceOwner[instance]
}

// GlobalReleaseTimestamp returns the current global unlock override.
func (f *Factory) GlobalReleaseTimestamp() int64 { return f.globalRelease }

// Instances returns all deployed instance addresses.
func (f *Factory) Instances() []common.Address {
	out := make([]common.Address, 0, len(f.instances))
	for addr := range f.instances {
		out = append(out, addr)
	}
	return out
}

// decodeAssetChoice parses the deposit data payload: the chosen backing
// asset as a bare 20-byte address.
func decodeAssetChoice(data []byte) (common.Address, error) {
	if len(data) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: malformed asset choice (%d bytes)", ErrUnsupportedAsset, len(data))
	}
	return common.BytesToAddress(data), nil
}

// OnDeposit is the ledger's transfer-notification callback and the only
// entry into a backing flow. The transfer credits the factory with the
// depositor's raw personal-token units; everything here either completes the
// full flow or returns an error, in which case the ledger reverts the credit.
func (f *Factory) OnDeposit(caller, operator, from common.Address, tokenID, amount *big.Int, data []byte) (*Instance, error) {
	if f.depositBusy {
		return nil, ErrDepositInProgress
	}
	f.depositBusy = true
	defer func() { f.depositBusy = false }()

	if caller != f.cfg.LedgerAddress {
		return nil, ErrCallerNotLedger
	}
	if amount == nil || amount.Cmp(f.cfg.PersonalTokenCommitment) != 0 {
		return nil, ErrAmountMismatch
	}

	avatar := f.svc.Ledger.AvatarFromTokenID(tokenID)
	if !f.svc.Ledger.IsHuman(avatar) {
		return nil, ErrNotHumanAccount
	}
	// A user may only back their own token: the nominal operator, the
	// source, and the token-derived identity must all be the same account.
	if operator != from || from != avatar {
		return nil, ErrBackingOnBehalfDisallowed
	}

	backingAsset, err := decodeAssetChoice(data)
	if err != nil {
		return nil, err
	}
	if !f.supportedAssets[backingAsset] {
		return nil, ErrUnsupportedAsset
	}

	instanceAddr := f.DeriveInstanceAddress(avatar)
	if _, exists := f.instances[instanceAddr]; exists {
		return nil, fmt.Errorf("%w: %s", ErrInstanceAlreadyDeployed, instanceAddr.Hex())
	}

	params, doc, err := f.buildOrderParams(instanceAddr, backingAsset)
	if err != nil {
		return nil, err
	}

	// First state write. The stable escrow comes out of the depositor's
	// allowance; an insufficient allowance aborts the whole flow here,
	// before anything else has moved.
	if err := f.svc.Ledger.PullFunds(f.cfg.StableToken, avatar, f.cfg.Address, f.cfg.Address, f.cfg.RequiredStableAmount); err != nil {
		return nil, fmt.Errorf("backing: pull stable escrow: %w", err)
	}

	personalToken, err := f.svc.Ledger.WrapPersonalToken(avatar, f.cfg.Address, amount)
	if err != nil {
		return nil, fmt.Errorf("backing: wrap personal token: %w", err)
	}

	inst := newInstance(f, instanceParams{
		address:        instanceAddr,
		backer:         avatar,
		backingAsset:   backingAsset,
		personalToken:  personalToken,
		personalAmount: new(big.Int).Set(amount),
		stableAmount:   new(big.Int).Set(f.cfg.RequiredStableAmount),
	})
	f.instances[instanceAddr] = inst
	f.instanceOwner[instanceAddr] = avatar

	// Move escrowed funds from the factory to the new instance.
	if err := f.svc.Ledger.Transfer(f.cfg.StableToken, f.cfg.Address, instanceAddr, f.cfg.RequiredStableAmount); err != nil {
		return nil, fmt.Errorf("backing: fund instance with stable escrow: %w", err)
	}
	if err := f.svc.Ledger.Transfer(personalToken, f.cfg.Address, instanceAddr, amount); err != nil {
		return nil, fmt.Errorf("backing: fund instance with personal token: %w", err)
	}

	if err := f.svc.Venue.RegisterOrder(instanceAddr, params, doc.Content); err != nil {
		return nil, fmt.Errorf("backing: register order: %w", err)
	}

	uid := order.Build(instanceAddr, params.SellToken, params.SellAmount, params.BuyToken, params.BuyAmount, params.ValidTo, params.AppData).UID()
	if err := inst.InitiateOrder(f.cfg.Address, params, uid); err != nil {
		return nil, err
	}

	f.svc.Events.Emit(InstanceDeployed{
		Backer:         avatar,
		Instance:       instanceAddr,
		BackingAsset:   backingAsset,
		PersonalToken:  personalToken,
		StableAmount:   new(big.Int).Set(f.cfg.RequiredStableAmount),
		PersonalAmount: new(big.Int).Set(amount),
	})
	return inst, nil
}

// buildOrderParams derives the order economics for an instance: sell the
// fixed stable escrow, buy at least the estimator's floor, valid for the
// configured window, carrying the instance-specific appData document.
func (f *Factory) buildOrderParams(instance, backingAsset common.Address) (order.StaticParams, appdata.Document, error) {
	buyMin, err := f.svc.Estimator.Estimate(f.cfg.StableToken, f.cfg.RequiredStableAmount, backingAsset)
	if err != nil {
		return order.StaticParams{}, appdata.Document{}, fmt.Errorf("backing: estimate floor: %w", err)
	}
	doc := appdata.Build(instance)
	params := order.StaticParams{
		SellToken:  f.cfg.StableToken,
		SellAmount: new(big.Int).Set(f.cfg.RequiredStableAmount),
		BuyToken:   backingAsset,
		BuyAmount:  buyMin,
		ValidTo:    f.svc.Clock.Now().Add(f.cfg.OrderValidity).Unix(),
		AppData:    doc.Hash,
	}
	return params, doc, nil
}

// BuildPoolJoinParams creates the two-asset pool for a recognized instance
// and returns the join request sized to the supplied amounts. Pool creation
// and the join request use the same canonical ascending-address token
// ordering; keeping both call sites on one code path is deliberate.
func (f *Factory) BuildPoolJoinParams(caller, personalToken common.Address, personalAmount *big.Int, backingAsset common.Address, backingAmount *big.Int) (common.Address, JoinRequest, error) {
	if f.instanceOwner[caller] == (common.Address{}) {
		return common.Address{}, JoinRequest{}, ErrCallerNotInstance
	}

	tokens, amounts, weights := orderPoolSides(personalToken, personalAmount, backingAsset, backingAmount)

	pool, err := f.svc.Pools.CreatePool(tokens, weights, f.cfg.SwapFee, caller, true)
	if err != nil {
		return common.Address{}, JoinRequest{}, fmt.Errorf("backing: create pool: %w", err)
	}
	req := JoinRequest{
		Tokens:       tokens,
		MaxAmountsIn: amounts,
		Kind:         JoinKindInit,
	}
	return pool, req, nil
}

// orderPoolSides sorts the personal/backing sides into canonical ascending
// address order, keeping amounts and initial weights aligned with the
// token positions.
func orderPoolSides(personalToken common.Address, personalAmount *big.Int, backingAsset common.Address, backingAmount *big.Int) (tokens [2]common.Address, amounts [2]*big.Int, weights [2]*big.Int) {
	if personalToken.Cmp(backingAsset) < 0 {
		tokens = [2]common.Address{personalToken, backingAsset}
		amounts = [2]*big.Int{personalAmount, backingAmount}
		weights = [2]*big.Int{WeightPersonalInitial, WeightBackingInitial}
		return
	}
	tokens = [2]common.Address{backingAsset, personalToken}
	amounts = [2]*big.Int{backingAmount, personalAmount}
	weights = [2]*big.Int{WeightBackingInitial, WeightPersonalInitial}
	return
}

// NotifyRelease re-emits a release event tagged with the calling instance's
// registered backer. Event forwarding only; no state changes.
func (f *Factory) NotifyRelease(caller, recipient, pool common.Address, amount *big.Int) error {
	backer := f.instanceOwner[caller]
	if backer == (common.Address{}) {
		return ErrCallerNotInstance
	}
	f.svc.Events.Emit(PoolTokensReleased{
		Backer:    backer,
		Instance:  caller,
		Pool:      pool,
		Recipient: recipient,
		Amount:    new(big.Int).Set(amount),
	})
	return nil
}

// SetSupportedAsset toggles a backing asset. Admin only.
func (f *Factory) SetSupportedAsset(caller, asset common.Address, supported bool) error {
	if caller != f.cfg.Admin {
		return ErrCallerNotAdmin
	}
	if supported {
		f.supportedAssets[asset] = true
	} else {
		delete(f.supportedAssets, asset)
	}
	f.svc.Events.Emit(AssetSupportChanged{Asset: asset, Supported: supported})
	return nil
}

// SetGlobalReleaseTimestamp sets the override that unlocks every instance
// once it passes. Admin only.
func (f *Factory) SetGlobalReleaseTimestamp(caller common.Address, ts int64) error {
	if caller != f.cfg.Admin {
		return ErrCallerNotAdmin
	}
	f.globalRelease = ts
	f.svc.Events.Emit(GlobalReleaseSet{Timestamp: ts})
	return nil
}

// SetSlippageBPS adjusts the estimator haircut. Admin only.
func (f *Factory) SetSlippageBPS(caller common.Address, bps uint32) error {
	if caller != f.cfg.Admin {
		return ErrCallerNotAdmin
	}
	return f.svc.Estimator.SetSlippageBPS(bps)
}
