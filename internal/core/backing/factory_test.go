package backing_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crclabs/backingd/internal/core/backing"
	"github.com/crclabs/backingd/internal/core/deriver"
	"github.com/crclabs/backingd/internal/core/estimator"
	"github.com/crclabs/backingd/internal/hub"
	itest "github.com/crclabs/backingd/internal/testing"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000001001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000001002")
	carol = common.HexToAddress("0x0000000000000000000000000000000000001003")
)

func TestDepositDeploysInstance(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)

	derived := env.Factory.DeriveInstanceAddress(alice)
	inst := env.MustDeposit(alice, itest.EnvBackingAsset)

	assert.Equal(t, derived, inst.Address(), "instance lands on the counterfactual address")
	assert.Equal(t, alice, inst.Backer())
	assert.Equal(t, itest.EnvBackingAsset, inst.BackingAsset())
	assert.Equal(t, alice, env.Factory.OwnerOf(inst.Address()))

	// Escrow: the stable amount and the wrapped personal commitment both sit
	// on the instance, nothing is stranded on the factory.
	assert.Equal(t, env.Config.RequiredStableAmount, env.Hub.BalanceOf(inst.Address(), itest.EnvStableToken))
	assert.Equal(t, env.Config.PersonalTokenCommitment, env.Hub.BalanceOf(inst.Address(), inst.PersonalToken()))
	assert.Equal(t, big.NewInt(0), env.Hub.BalanceOf(itest.EnvFactoryAddress, itest.EnvStableToken))
	assert.Equal(t, big.NewInt(0), env.Hub.BalanceOf(alice, itest.EnvStableToken))
	assert.Equal(t, big.NewInt(0), env.Hub.BalanceOf(alice, alice), "raw personal units fully committed")

	// The order is live at the venue with the estimator's floor.
	require.False(t, inst.OrderUID().IsZero())
	params := inst.OrderParams()
	assert.Equal(t, env.Config.RequiredStableAmount, params.SellAmount)
	assert.Equal(t, big.NewInt(190_000), params.BuyAmount, "100 stable at $1 vs $50k asset, 5% haircut")
	assert.Equal(t, env.Clock.Now().Add(env.Config.OrderValidity).Unix(), params.ValidTo)

	terms, err := env.Venue.Evaluate(inst.OrderUID(), env.Clock.Now())
	require.NoError(t, err, "freshly funded order evaluates clean")
	assert.Equal(t, inst.Address(), terms.Receiver)

	assert.Len(t, env.Events.OfName("InstanceDeployed"), 1)
	assert.Len(t, env.Events.OfName("OrderInitiated"), 1)
}

func TestDepositAddressMatchesManualDerivation(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)
	inst := env.MustDeposit(alice, itest.EnvBackingAsset)

	manual := deriver.InstanceAddress(itest.EnvFactoryAddress, alice, env.Config.Fingerprint)
	assert.Equal(t, manual, inst.Address())
}

func TestDepositRejectsWrongCaller(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)

	_, err := env.Factory.OnDeposit(alice, alice, alice, hub.TokenIDForAvatar(alice), env.Config.PersonalTokenCommitment, itest.EnvBackingAsset.Bytes())
	assert.ErrorIs(t, err, backing.ErrCallerNotLedger)
}

func TestDepositRejectsWrongAmount(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)

	short := new(big.Int).Sub(env.Config.PersonalTokenCommitment, big.NewInt(1))
	err := env.Hub.TransferWithCallback(alice, alice, itest.EnvFactoryAddress, hub.TokenIDForAvatar(alice), short, itest.EnvBackingAsset.Bytes())
	assert.ErrorIs(t, err, backing.ErrAmountMismatch)

	_, err = env.Factory.OnDeposit(itest.EnvHubAddress, alice, alice, hub.TokenIDForAvatar(alice), nil, itest.EnvBackingAsset.Bytes())
	assert.ErrorIs(t, err, backing.ErrAmountMismatch)
}

func TestDepositRejectsNonHuman(t *testing.T) {
	env := itest.NewEnv(t)
	org := common.HexToAddress("0x0000000000000000000000000000000000002001")
	require.NoError(t, env.Hub.RegisterAvatar(org, false))
	env.Hub.Mint(org, org, env.Config.PersonalTokenCommitment)

	err := env.Deposit(org, itest.EnvBackingAsset)
	assert.ErrorIs(t, err, backing.ErrNotHumanAccount)
	assert.Equal(t, env.Config.PersonalTokenCommitment, env.Hub.BalanceOf(org, org), "failed deposit is fully reverted")
}

func TestDepositRejectsBackingOnBehalf(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)
	env.NewBacker(bob)

	// Operator differs from source.
	_, err := env.Factory.OnDeposit(itest.EnvHubAddress, bob, alice, hub.TokenIDForAvatar(alice), env.Config.PersonalTokenCommitment, itest.EnvBackingAsset.Bytes())
	assert.ErrorIs(t, err, backing.ErrBackingOnBehalfDisallowed)

	// Source differs from the token's avatar: bob sends alice's tokens.
	env.Hub.Mint(alice, bob, env.Config.PersonalTokenCommitment)
	err = env.Hub.TransferWithCallback(bob, bob, itest.EnvFactoryAddress, hub.TokenIDForAvatar(alice), env.Config.PersonalTokenCommitment, itest.EnvBackingAsset.Bytes())
	assert.ErrorIs(t, err, backing.ErrBackingOnBehalfDisallowed)
}

func TestDepositRejectsBadAssetChoice(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)

	err := env.Hub.TransferWithCallback(alice, alice, itest.EnvFactoryAddress, hub.TokenIDForAvatar(alice), env.Config.PersonalTokenCommitment, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, backing.ErrUnsupportedAsset, "malformed asset payload")

	unsupported := common.HexToAddress("0x0000000000000000000000000000000000009999")
	err = env.Deposit(alice, unsupported)
	assert.ErrorIs(t, err, backing.ErrUnsupportedAsset)

	// Support can be granted and revoked by the admin.
	env.SupportAsset(unsupported)
	require.NoError(t, env.Factory.SetSupportedAsset(itest.EnvAdminAddress, unsupported, false))
	err = env.Deposit(alice, unsupported)
	assert.ErrorIs(t, err, backing.ErrUnsupportedAsset)
}

func TestDepositExactlyOncePerBacker(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)
	env.MustDeposit(alice, itest.EnvBackingAsset)

	// Re-fund and try again: the counterfactual slot is taken.
	env.Hub.Mint(alice, alice, env.Config.PersonalTokenCommitment)
	env.Hub.Mint(itest.EnvStableToken, alice, env.Config.RequiredStableAmount)
	require.NoError(t, env.Hub.Approve(itest.EnvStableToken, alice, itest.EnvFactoryAddress, env.Config.RequiredStableAmount))

	err := env.Deposit(alice, itest.EnvBackingAsset)
	assert.ErrorIs(t, err, backing.ErrInstanceAlreadyDeployed)
	assert.Equal(t, env.Config.PersonalTokenCommitment, env.Hub.BalanceOf(alice, alice))
	assert.Len(t, env.Factory.Instances(), 1)
}

func TestDepositAtomicOnMissingAllowance(t *testing.T) {
	env := itest.NewEnv(t)
	require.NoError(t, env.Hub.RegisterAvatar(carol, true))
	env.Hub.Mint(carol, carol, env.Config.PersonalTokenCommitment)
	// Stable funded but never approved to the factory.
	env.Hub.Mint(itest.EnvStableToken, carol, env.Config.RequiredStableAmount)

	err := env.Deposit(carol, itest.EnvBackingAsset)
	require.Error(t, err)
	assert.ErrorIs(t, err, hub.ErrInsufficientAllowance)

	assert.Equal(t, env.Config.PersonalTokenCommitment, env.Hub.BalanceOf(carol, carol))
	assert.Equal(t, env.Config.RequiredStableAmount, env.Hub.BalanceOf(carol, itest.EnvStableToken))
	assert.Empty(t, env.Factory.Instances())
}

func TestDepositDistinctBackersDistinctInstances(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)
	env.NewBacker(bob)

	ia := env.MustDeposit(alice, itest.EnvBackingAsset)
	ib := env.MustDeposit(bob, itest.EnvBackingAsset)
	assert.NotEqual(t, ia.Address(), ib.Address())
	assert.NotEqual(t, ia.OrderUID(), ib.OrderUID())
}

func TestDepositWithStaleOraclePrice(t *testing.T) {
	env := itest.NewEnv(t)
	env.NewBacker(alice)

	// Quotes age out after a day; the buy-side floor collapses to the
	// smallest unit rather than blocking the deposit.
	env.Clock.Advance(25 * time.Hour)
	inst := env.MustDeposit(alice, itest.EnvBackingAsset)
	assert.Equal(t, big.NewInt(1), inst.OrderParams().BuyAmount)
}

func TestAdminGuards(t *testing.T) {
	env := itest.NewEnv(t)

	err := env.Factory.SetSupportedAsset(alice, itest.EnvBackingAsset, false)
	assert.ErrorIs(t, err, backing.ErrCallerNotAdmin)

	err = env.Factory.SetGlobalReleaseTimestamp(alice, 0)
	assert.ErrorIs(t, err, backing.ErrCallerNotAdmin)

	err = env.Factory.SetSlippageBPS(alice, 100)
	assert.ErrorIs(t, err, backing.ErrCallerNotAdmin)

	require.NoError(t, env.Factory.SetSlippageBPS(itest.EnvAdminAddress, 100))
	assert.Equal(t, uint32(100), env.Estimator.SlippageBPS())

	err = env.Factory.SetSlippageBPS(itest.EnvAdminAddress, 10_000)
	assert.ErrorIs(t, err, estimator.ErrSlippageOutOfRange)
}

func TestGlobalReleaseTimestampDefaultsToNever(t *testing.T) {
	env := itest.NewEnv(t)
	assert.Equal(t, backing.NeverRelease, env.Factory.GlobalReleaseTimestamp())

	require.NoError(t, env.Factory.SetGlobalReleaseTimestamp(itest.EnvAdminAddress, 12345))
	assert.Equal(t, int64(12345), env.Factory.GlobalReleaseTimestamp())
	assert.Len(t, env.Events.OfName("GlobalReleaseSet"), 1)
}

func TestBuildPoolJoinParamsRequiresInstance(t *testing.T) {
	env := itest.NewEnv(t)
	_, _, err := env.Factory.BuildPoolJoinParams(alice, alice, big.NewInt(1), itest.EnvBackingAsset, big.NewInt(1))
	assert.ErrorIs(t, err, backing.ErrCallerNotInstance)
}

func TestNotifyReleaseRequiresInstance(t *testing.T) {
	env := itest.NewEnv(t)
	err := env.Factory.NotifyRelease(alice, alice, common.Address{}, big.NewInt(1))
	assert.ErrorIs(t, err, backing.ErrCallerNotInstance)
}
