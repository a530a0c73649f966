package node

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crclabs/backingd/internal/core/backing"
	"github.com/crclabs/backingd/internal/core/deriver"
	"github.com/crclabs/backingd/internal/core/order"
	"github.com/crclabs/backingd/internal/storage/eventdb"
	"github.com/crclabs/backingd/internal/storage/kv"
	"github.com/crclabs/backingd/internal/storage/statestore"
	itest "github.com/crclabs/backingd/internal/testing"
)

var (
	factoryAddr = common.HexToAddress("0x0000000000000000000000000000000000000200")
	adminAddr   = common.HexToAddress("0x0000000000000000000000000000000000000300")
	settlement  = common.HexToAddress("0x0000000000000000000000000000000000000400")
	stableToken = common.HexToAddress("0x0000000000000000000000000000000000000500")
	assetToken  = common.HexToAddress("0x0000000000000000000000000000000000000600")
	ledgerAddr  = common.HexToAddress("0x0000000000000000000000000000000000000100")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000001001")
)

func protocolConfig() backing.Config {
	return backing.Config{
		Address:                 factoryAddr,
		Admin:                   adminAddr,
		LedgerAddress:           ledgerAddr,
		StableToken:             stableToken,
		RequiredStableAmount:    backing.DefaultRequiredStableAmount,
		PersonalTokenCommitment: backing.DefaultPersonalTokenCommitment,
		Fingerprint:             deriver.CodeFingerprint(crypto.Keccak256Hash([]byte("backing-instance-v1"))),
		OrderValidity:           backing.DefaultOrderValidity,
		LockDuration:            backing.DefaultLockDuration,
		WeightShiftDuration:     backing.DefaultWeightShiftDuration,
		SwapFee:                 backing.DefaultSwapFee,
	}
}

type fixture struct {
	node   *Node
	clock  *itest.ManualClock
	states *statestore.Store
	events *eventdb.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := kv.Open("pebble", filepath.Join(dir, "state"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	states, err := statestore.New(db, 16)
	require.NoError(t, err)

	events, err := eventdb.Open(context.Background(), eventdb.NewSQLiteConfig(filepath.Join(dir, "events.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	clock := itest.NewManualClock()
	n, err := New(Options{
		Protocol:   protocolConfig(),
		Settlement: settlement,
		States:     states,
		Events:     events,
		Clock:      clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	n.RegisterToken(assetToken, 8)
	require.NoError(t, n.SetSupportedAsset(adminAddr, assetToken, true))
	require.NoError(t, n.ReportPrice(adminAddr, stableToken, big.NewInt(100_000_000), 8))
	require.NoError(t, n.ReportPrice(adminAddr, assetToken, big.NewInt(5_000_000_000_000), 8))

	return &fixture{node: n, clock: clock, states: states, events: events}
}

func (f *fixture) newBacker(t *testing.T, addr common.Address) {
	t.Helper()
	cfg := f.node.factory.Config()
	require.NoError(t, f.node.RegisterAvatar(addr, true))
	require.NoError(t, f.node.Mint(adminAddr, addr, addr, cfg.PersonalTokenCommitment))
	require.NoError(t, f.node.Mint(adminAddr, stableToken, addr, cfg.RequiredStableAmount))
	require.NoError(t, f.node.Approve(stableToken, addr, factoryAddr, cfg.RequiredStableAmount))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Settlement: settlement})
	assert.Error(t, err, "missing factory address")

	_, err = New(Options{Protocol: protocolConfig()})
	assert.Error(t, err, "missing settlement account")
}

func TestDepositDeploysAndPersists(t *testing.T) {
	f := newFixture(t)
	f.newBacker(t, alice)

	addr, err := f.node.Deposit(alice, assetToken)
	require.NoError(t, err)
	assert.Equal(t, f.node.DeriveInstanceAddress(alice), addr)

	state, err := f.node.InstanceState(addr)
	require.NoError(t, err)
	assert.Equal(t, alice, state.Backer)
	assert.Equal(t, assetToken, state.BackingAsset)

	// The snapshot also landed in the durable store.
	rec, err := f.states.GetInstance(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, state, rec)

	fact, err := f.states.GetFactory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{assetToken}, fact.SupportedAssets)
	assert.Equal(t, backing.NeverRelease, fact.GlobalRelease)
}

func TestDepositErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	f.newBacker(t, alice)

	unsupported := common.HexToAddress("0x0000000000000000000000000000000000000601")
	_, err := f.node.Deposit(alice, unsupported)
	assert.ErrorIs(t, err, backing.ErrUnsupportedAsset)

	_, err = f.node.InstanceState(f.node.DeriveInstanceAddress(alice))
	assert.ErrorIs(t, err, backing.ErrUnknownInstance)
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	f.newBacker(t, alice)

	ch, cancel := f.node.Subscribe()
	defer cancel()

	addr, err := f.node.Deposit(alice, assetToken)
	require.NoError(t, err)
	state, err := f.node.InstanceState(addr)
	require.NoError(t, err)

	uid, err := order.UIDFromHex(state.OrderUID)
	require.NoError(t, err)

	// Settle the order: fund the venue's settlement account, then fill.
	require.NoError(t, f.node.Mint(adminAddr, assetToken, settlement, big.NewInt(1_000_000)))
	require.NoError(t, f.node.FillOrder(uid, state.OrderParams.BuyAmount))

	require.NoError(t, f.node.CreatePool(addr))
	state, err = f.node.InstanceState(addr)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, state.Pool)

	// Locked until the per-instance unlock passes.
	var locked *backing.LockedError
	err = f.node.ReleasePoolTokens(alice, addr, alice)
	require.ErrorAs(t, err, &locked)

	f.clock.Advance(backing.DefaultLockDuration + time.Hour)
	require.NoError(t, f.node.ReleasePoolTokens(alice, addr, alice))
	assert.Positive(t, f.node.BalanceOf(alice, state.Pool).Sign())

	notes := drain(ch)
	names := make(map[string]int)
	for _, note := range notes {
		names[note.Name]++
		assert.Equal(t, addr, note.Instance)
	}
	assert.Equal(t, 1, names["InstanceDeployed"])
	assert.Equal(t, 1, names["PoolCreated"])
	assert.Equal(t, 1, names["PoolTokensReleased"])

	// Events were indexed with monotonically increasing sequence numbers.
	recs, err := f.events.ByInstance(context.Background(), addr, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Seq, recs[i-1].Seq)
	}
}

func drain(ch <-chan Notification) []Notification {
	var out []Notification
	for {
		select {
		case note := <-ch:
			out = append(out, note)
		default:
			return out
		}
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	f := newFixture(t)

	ch, cancel := f.node.Subscribe()
	cancel()
	cancel() // idempotent
	_, open := <-ch
	assert.False(t, open)

	ch2, _ := f.node.Subscribe()
	require.NoError(t, f.node.Close())
	_, open = <-ch2
	assert.False(t, open)

	ch3, cancel3 := f.node.Subscribe()
	defer cancel3()
	_, open = <-ch3
	assert.False(t, open, "subscribing after close yields a closed channel")
}

func TestAdminOpsGuardedAndPersisted(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.node.SetGlobalReleaseTimestamp(alice, 1), backing.ErrCallerNotAdmin)
	assert.ErrorIs(t, f.node.Mint(alice, stableToken, alice, big.NewInt(1)), backing.ErrCallerNotAdmin)

	require.NoError(t, f.node.SetGlobalReleaseTimestamp(adminAddr, 12345))
	require.NoError(t, f.node.SetSlippageBPS(adminAddr, 100))

	status := f.node.Status()
	assert.EqualValues(t, 12345, status.GlobalRelease)
	assert.EqualValues(t, 100, status.SlippageBPS)
	assert.Equal(t, settlement, status.Settlement)

	fact, err := f.states.GetFactory(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 12345, fact.GlobalRelease)
	assert.EqualValues(t, 100, fact.SlippageBPS)
}

func TestEvaluateOrderTracksClock(t *testing.T) {
	f := newFixture(t)
	f.newBacker(t, alice)

	addr, err := f.node.Deposit(alice, assetToken)
	require.NoError(t, err)
	state, err := f.node.InstanceState(addr)
	require.NoError(t, err)
	uid, err := order.UIDFromHex(state.OrderUID)
	require.NoError(t, err)

	_, err = f.node.EvaluateOrder(uid)
	require.NoError(t, err)

	f.clock.Advance(backing.DefaultOrderValidity + time.Hour)
	_, err = f.node.EvaluateOrder(uid)
	assert.Error(t, err, "expired order no longer evaluates clean")
}
