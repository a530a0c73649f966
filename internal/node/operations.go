package node

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/backing"
	"github.com/crclabs/backingd/internal/core/order"
	"github.com/crclabs/backingd/internal/hub"
)

// Deposit submits the personal-token commitment that triggers instance
// deployment and returns the deployed instance snapshot address.
func (n *Node) Deposit(backer, asset common.Address) (common.Address, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.hub.TransferWithCallback(
		backer, backer, n.cfg.Address,
		hub.TokenIDForAvatar(backer), n.cfg.PersonalTokenCommitment, asset.Bytes(),
	)
	if err != nil {
		return common.Address{}, err
	}

	addr := n.factory.DeriveInstanceAddress(backer)
	inst, _ := n.factory.Instance(addr)
	n.persistInstance(inst)
	n.persistFactory()
	return addr, nil
}

// ResetOrder re-derives an instance's unfilled order at current prices.
func (n *Node) ResetOrder(instance common.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inst, ok := n.factory.Instance(instance)
	if !ok {
		return backing.ErrUnknownInstance
	}
	if err := inst.ResetOrder(); err != nil {
		return err
	}
	n.persistInstance(inst)
	return nil
}

// CreatePool seeds an instance's pool once its order has settled or expired.
func (n *Node) CreatePool(instance common.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inst, ok := n.factory.Instance(instance)
	if !ok {
		return backing.ErrUnknownInstance
	}
	if err := inst.CreatePool(); err != nil {
		return err
	}
	n.persistInstance(inst)
	return nil
}

// ReleasePoolTokens moves an instance's pool receipts to the recipient.
func (n *Node) ReleasePoolTokens(caller, instance, recipient common.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inst, ok := n.factory.Instance(instance)
	if !ok {
		return backing.ErrUnknownInstance
	}
	if err := inst.ReleasePoolTokens(caller, recipient); err != nil {
		return err
	}
	n.persistInstance(inst)
	return nil
}

// FillOrder settles a registered order at the venue for buyAmount.
func (n *Node) FillOrder(uid order.UID, buyAmount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.venue.Fill(uid, buyAmount, n.clock.Now())
}

// SignOrder authorizes a registered order with a recoverable signature over
// its uid digest.
func (n *Node) SignOrder(uid order.UID, sig []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.venue.SignOrder(uid, sig)
}

// ReportPrice records an oracle quote observed now.
func (n *Node) ReportPrice(caller, token common.Address, price *big.Int, decimals uint8) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.Report(caller, token, price, decimals, n.clock.Now())
}

// SetSupportedAsset toggles a backing asset, admin only.
func (n *Node) SetSupportedAsset(caller, asset common.Address, supported bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.factory.SetSupportedAsset(caller, asset, supported); err != nil {
		return err
	}
	n.persistFactory()
	return nil
}

// SetGlobalReleaseTimestamp sets the global unlock override, admin only.
func (n *Node) SetGlobalReleaseTimestamp(caller common.Address, ts int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.factory.SetGlobalReleaseTimestamp(caller, ts); err != nil {
		return err
	}
	n.persistFactory()
	return nil
}

// SetSlippageBPS updates the estimator's haircut, admin only.
func (n *Node) SetSlippageBPS(caller common.Address, bps uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.factory.SetSlippageBPS(caller, bps); err != nil {
		return err
	}
	n.persistFactory()
	return nil
}

// RegisterAvatar registers a ledger account, flagged human or organization.
func (n *Node) RegisterAvatar(addr common.Address, human bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hub.RegisterAvatar(addr, human)
}

// RegisterToken registers a plain token with its decimals.
func (n *Node) RegisterToken(token common.Address, decimals uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hub.RegisterToken(token, decimals)
}

// Mint credits a balance on the in-process ledger, admin only. Exists for
// deployments where the node doubles as the ledger of record.
func (n *Node) Mint(caller, token, to common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if caller != n.cfg.Admin {
		return backing.ErrCallerNotAdmin
	}
	n.hub.Mint(token, to, amount)
	return nil
}

// Approve sets a spender allowance on the in-process ledger.
func (n *Node) Approve(token, owner, spender common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hub.Approve(token, owner, spender, amount)
}

// BalanceOf reads a ledger balance.
func (n *Node) BalanceOf(owner, token common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hub.BalanceOf(owner, token)
}
