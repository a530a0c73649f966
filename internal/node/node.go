// Package node wires the protocol engine: hub, venue, pool engine, oracle
// and factory behind a single mutex, with state snapshots persisted on
// commit and events fanned out to the event index and live subscribers.
package node

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/backing"
	"github.com/crclabs/backingd/internal/core/estimator"
	"github.com/crclabs/backingd/internal/core/order"
	"github.com/crclabs/backingd/internal/hub"
	"github.com/crclabs/backingd/internal/oracle"
	"github.com/crclabs/backingd/internal/pool"
	"github.com/crclabs/backingd/internal/storage/eventdb"
	"github.com/crclabs/backingd/internal/storage/statestore"
	"github.com/crclabs/backingd/internal/venue"
)

const defaultPersistTimeout = 10 * time.Second

// Options configures a Node. States and Events are optional; without them
// the node runs purely in memory.
type Options struct {
	Protocol   backing.Config
	Settlement common.Address

	States *statestore.Store
	Events *eventdb.Store

	Clock  backing.Clock
	Logger *log.Logger

	// PersistTimeout bounds each snapshot or event write.
	PersistTimeout time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

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

// Node is the engine. All state-mutating operations are serialized through
// one mutex; reads of live protocol objects take the same lock.
type Node struct {
	mu sync.Mutex

	cfg        backing.Config
	settlement common.Address
	clock      backing.Clock
	logger     *log.Logger

	hub     *hub.Hub
	venue   *venue.Venue
	pools   *pool.Engine
	oracle  *oracle.Registry
	est     *estimator.Estimator
	factory *backing.Factory

	states         *statestore.Store
	events         *eventdb.Store
	persistTimeout time.Duration

	subMu   sync.Mutex
	subs    map[int]chan Notification
	nextSub int
	closed  bool
}

// New builds a node from protocol constants plus optional persistence.
func New(opts Options) (*Node, error) {
	if opts.Protocol.Address == (common.Address{}) {
		return nil, fmt.Errorf("node: factory address is required")
	}
	if opts.Settlement == (common.Address{}) {
		return nil, fmt.Errorf("node: settlement account is required")
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[node] ", log.LstdFlags)
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}

	n := &Node{
		cfg:            opts.Protocol,
		settlement:     opts.Settlement,
		clock:          opts.Clock,
		logger:         opts.Logger,
		states:         opts.States,
		events:         opts.Events,
		persistTimeout: opts.PersistTimeout,
		subs:           make(map[int]chan Notification),
	}

	n.hub = hub.New(opts.Protocol.LedgerAddress)
	n.oracle = oracle.New(opts.Protocol.Admin)
	n.est = estimator.New(n.oracle, n.hub, opts.Clock)
	n.pools = pool.New(n.hub, opts.Clock)

	ve := &venueEnv{hub: n.hub}
	n.venue = venue.New(n.hub, ve, opts.Settlement)

	n.factory = backing.NewFactory(opts.Protocol, backing.Services{
		Ledger:    n.hub,
		Venue:     n.venue,
		Pools:     n.pools,
		Estimator: n.est,
		Clock:     opts.Clock,
		Events:    n,
	})
	ve.factory = n.factory

	n.hub.SetCallback(opts.Protocol.Address, func(operator, from common.Address, tokenID, amount *big.Int, data []byte) error {
		_, err := n.factory.OnDeposit(opts.Protocol.LedgerAddress, operator, from, tokenID, amount, data)
		return err
	})

	n.hub.RegisterToken(opts.Protocol.StableToken, 6)
	return n, nil
}

// Hub exposes the in-process ledger, for test and tooling wiring.
func (n *Node) Hub() *hub.Hub { return n.hub }

// Factory exposes the protocol factory.
func (n *Node) Factory() *backing.Factory { return n.factory }

// Venue exposes the settlement venue.
func (n *Node) Venue() *venue.Venue { return n.venue }

// Oracle exposes the price registry.
func (n *Node) Oracle() *oracle.Registry { return n.oracle }

// Pools exposes the weighted pool engine.
func (n *Node) Pools() *pool.Engine { return n.pools }

// Now returns the node's view of the current time.
func (n *Node) Now() time.Time { return n.clock.Now() }

// Status is the factory-level view served over RPC.
type Status struct {
	Factory         common.Address   `json:"factory"`
	Settlement      common.Address   `json:"settlement"`
	StableToken     common.Address   `json:"stableToken"`
	Instances       int              `json:"instances"`
	SupportedAssets []common.Address `json:"supportedAssets"`
	GlobalRelease   int64            `json:"globalRelease"`
	SlippageBPS     uint32           `json:"slippageBps"`
	Time            int64            `json:"time"`
}

// Status reports the factory-level state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Status{
		Factory:         n.cfg.Address,
		Settlement:      n.settlement,
		StableToken:     n.cfg.StableToken,
		Instances:       len(n.factory.Instances()),
		SupportedAssets: n.factory.SupportedAssets(),
		GlobalRelease:   n.factory.GlobalReleaseTimestamp(),
		SlippageBPS:     n.est.SlippageBPS(),
		Time:            n.clock.Now().Unix(),
	}
}

// DeriveInstanceAddress computes the counterfactual instance address for a
// backer without touching state.
func (n *Node) DeriveInstanceAddress(backer common.Address) common.Address {
	return n.factory.DeriveInstanceAddress(backer)
}

// InstanceState snapshots a deployed instance by address.
func (n *Node) InstanceState(addr common.Address) (*statestore.InstanceRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	inst, ok := n.factory.Instance(addr)
	if !ok {
		return nil, backing.ErrUnknownInstance
	}
	return statestore.SnapshotInstance(inst), nil
}

// InstanceAddresses lists deployed instances.
func (n *Node) InstanceAddresses() []common.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.factory.Instances()
}

// EvaluateOrder runs the venue's conditional-order hook at node time.
func (n *Node) EvaluateOrder(uid order.UID) (order.Terms, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.venue.Evaluate(uid, n.clock.Now())
}

// Close stops event fan-out. Persistence stores are owned by the caller.
func (n *Node) Close() error {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for id, ch := range n.subs {
		close(ch)
		delete(n.subs, id)
	}
	return nil
}

// persistInstance writes an instance snapshot, best-effort.
func (n *Node) persistInstance(inst *backing.Instance) {
	if n.states == nil || inst == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.persistTimeout)
	defer cancel()
	if err := n.states.PutInstance(ctx, statestore.SnapshotInstance(inst)); err != nil {
		n.logger.Printf("persist instance %s: %v", inst.Address(), err)
	}
}

// persistFactory writes the factory-level snapshot, best-effort.
func (n *Node) persistFactory() {
	if n.states == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.persistTimeout)
	defer cancel()
	rec := &statestore.FactoryRecord{
		SupportedAssets: n.factory.SupportedAssets(),
		GlobalRelease:   n.factory.GlobalReleaseTimestamp(),
		SlippageBPS:     n.est.SlippageBPS(),
	}
	if err := n.states.PutFactory(ctx, rec); err != nil {
		n.logger.Printf("persist factory state: %v", err)
	}
}
