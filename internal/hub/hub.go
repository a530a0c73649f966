// Package hub implements the token ledger the backing factory trusts: avatar
// identities with human/organization flags, multi-token balances and
// allowances, personal-token wrapping, and the synchronous
// transfer-notification callback that drives deposits.
package hub

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownAvatar         = errors.New("hub: avatar not registered")
	ErrAvatarExists          = errors.New("hub: avatar already registered")
	ErrInsufficientBalance   = errors.New("hub: insufficient balance")
	ErrInsufficientAllowance = errors.New("hub: insufficient allowance")
)

// TransferCallback is invoked synchronously when a transfer credits an
// account that registered one. If it returns an error the transfer is
// reverted and the error propagates to the sender: the whole deposit is
// all-or-nothing.
type TransferCallback func(operator, from common.Address, tokenID, amount *big.Int, data []byte) error

type avatar struct {
	human bool
}

// Hub is an in-process ledger. All methods are safe for concurrent readers;
// state-changing calls are expected to arrive serialized by the node engine.
type Hub struct {
	mu sync.RWMutex

	address  common.Address
	avatars  map[common.Address]*avatar
	decimals map[common.Address]uint8

	// balances[token][owner]; raw personal-token balances use the avatar
	// address itself as the token key.
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int

	// wrapped caches the ERC20-style wrapper address per avatar.
	wrapped map[common.Address]common.Address

	callbacks map[common.Address]TransferCallback
}

// New creates an empty hub with the given service identity.
func New(address common.Address) *Hub {
	return &Hub{
		address:    address,
		avatars:    make(map[common.Address]*avatar),
		decimals:   make(map[common.Address]uint8),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		wrapped:    make(map[common.Address]common.Address),
		callbacks:  make(map[common.Address]TransferCallback),
	}
}

// Address is the hub's caller identity, the only caller the factory's
// deposit entry point accepts.
func (h *Hub) Address() common.Address { return h.address }

// RegisterAvatar adds an account. Personal tokens carry 18 decimals.
func (h *Hub) RegisterAvatar(addr common.Address, human bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.avatars[addr]; ok {
		return ErrAvatarExists
	}
	h.avatars[addr] = &avatar{human: human}
	h.decimals[addr] = 18
	return nil
}

// RegisterToken declares an external fungible token (stable, backing assets,
// pool receipts) with its display decimals.
func (h *Hub) RegisterToken(token common.Address, decimals uint8) {
	h.mu.Lock()
	h.decimals[token] = decimals
	h.mu.Unlock()
}

// SetCallback installs the transfer-notification hook for a recipient.
func (h *Hub) SetCallback(recipient common.Address, cb TransferCallback) {
	h.mu.Lock()
	h.callbacks[recipient] = cb
	h.mu.Unlock()
}

// IsHuman reports whether the avatar is registered as an individual.
func (h *Hub) IsHuman(addr common.Address) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.avatars[addr]
	return ok && a.human
}

// AvatarFromTokenID maps a personal token id to its avatar: the id is the
// avatar address, zero-extended.
func (h *Hub) AvatarFromTokenID(id *big.Int) common.Address {
	if id == nil {
		return common.Address{}
	}
	return common.BigToAddress(id)
}

// TokenIDForAvatar is the inverse mapping, used by clients building deposits.
func TokenIDForAvatar(avatar common.Address) *big.Int {
	return new(big.Int).SetBytes(avatar.Bytes())
}

// WrappedToken returns the deterministic wrapper address for an avatar's
// personal token.
func WrappedToken(avatar common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("wrapped-personal"), avatar.Bytes())[12:])
}

// Decimals returns a token's display decimals (18 when undeclared).
func (h *Hub) Decimals(token common.Address) uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if d, ok := h.decimals[token]; ok {
		return d
	}
	return 18
}

// BalanceOf returns a copy of the owner's balance for a token.
func (h *Hub) BalanceOf(owner, token common.Address) *big.Int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return new(big.Int).Set(h.balance(token, owner))
}

// balance returns the live balance entry; callers hold the lock.
func (h *Hub) balance(token, owner common.Address) *big.Int {
	if m, ok := h.balances[token]; ok {
		if b, ok := m[owner]; ok {
			return b
		}
	}
	return new(big.Int)
}

func (h *Hub) credit(token, owner common.Address, amount *big.Int) {
	m, ok := h.balances[token]
	if !ok {
		m = make(map[common.Address]*big.Int)
		h.balances[token] = m
	}
	if b, ok := m[owner]; ok {
		b.Add(b, amount)
	} else {
		m[owner] = new(big.Int).Set(amount)
	}
}

func (h *Hub) debit(token, owner common.Address, amount *big.Int) error {
	b := h.balance(token, owner)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s owner %s has %s, needs %s",
			ErrInsufficientBalance, token.Hex(), owner.Hex(), b, amount)
	}
	if m, ok := h.balances[token]; ok {
		if live, ok := m[owner]; ok {
			live.Sub(live, amount)
		}
	}
	return nil
}

// Mint credits new units. Used for genesis funding, personal-token issuance
// and pool-receipt minting.
func (h *Hub) Mint(token, to common.Address, amount *big.Int) {
	h.mu.Lock()
	h.credit(token, to, amount)
	h.mu.Unlock()
}

// Burn destroys units held by owner.
func (h *Hub) Burn(token, owner common.Address, amount *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.debit(token, owner, amount)
}

// Transfer moves a sender-owned balance. Zero amounts are a no-op.
func (h *Hub) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.debit(token, from, amount); err != nil {
		return err
	}
	h.credit(token, to, amount)
	return nil
}

// Approve lets spender pull up to amount of owner's balance.
func (h *Hub) Approve(token, owner, spender common.Address, amount *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	byToken, ok := h.allowances[token]
	if !ok {
		byToken = make(map[common.Address]map[common.Address]*big.Int)
		h.allowances[token] = byToken
	}
	byOwner, ok := byToken[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		byToken[owner] = byOwner
	}
	byOwner[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the remaining pull budget.
func (h *Hub) Allowance(token, owner, spender common.Address) *big.Int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if byToken, ok := h.allowances[token]; ok {
		if byOwner, ok := byToken[owner]; ok {
			if a, ok := byOwner[spender]; ok {
				return new(big.Int).Set(a)
			}
		}
	}
	return new(big.Int)
}

// PullFunds moves owner funds under spender's allowance.
func (h *Hub) PullFunds(token, from, to, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var budget *big.Int
	if byToken, ok := h.allowances[token]; ok {
		if byOwner, ok := byToken[from]; ok {
			budget = byOwner[spender]
		}
	}
	if budget == nil || budget.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s owner %s spender %s", ErrInsufficientAllowance, token.Hex(), from.Hex(), spender.Hex())
	}
	if err := h.debit(token, from, amount); err != nil {
		return err
	}
	budget.Sub(budget, amount)
	h.credit(token, to, amount)
	return nil
}

// WrapPersonalToken converts raw personal units held by holder into the
// avatar's transferable wrapper token and returns the wrapper address.
func (h *Hub) WrapPersonalToken(avatarAddr, holder common.Address, amount *big.Int) (common.Address, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.avatars[avatarAddr]; !ok {
		return common.Address{}, ErrUnknownAvatar
	}
	if err := h.debit(avatarAddr, holder, amount); err != nil {
		return common.Address{}, fmt.Errorf("hub: wrap: %w", err)
	}

	wrapper, ok := h.wrapped[avatarAddr]
	if !ok {
		wrapper = WrappedToken(avatarAddr)
		h.wrapped[avatarAddr] = wrapper
		h.decimals[wrapper] = 18
	}
	h.credit(wrapper, holder, amount)
	return wrapper, nil
}

// TransferWithCallback moves raw personal units and synchronously notifies
// the recipient. A callback error reverts the transfer, so a failed deposit
// leaves the sender's balance untouched.
func (h *Hub) TransferWithCallback(operator, from, to common.Address, tokenID, amount *big.Int, data []byte) error {
	token := h.AvatarFromTokenID(tokenID)

	h.mu.Lock()
	if err := h.debit(token, from, amount); err != nil {
		h.mu.Unlock()
		return err
	}
	h.credit(token, to, amount)
	cb := h.callbacks[to]
	h.mu.Unlock()

	if cb == nil {
		return nil
	}
	if err := cb(operator, from, tokenID, amount, data); err != nil {
		h.mu.Lock()
		// Revert the credit; the debit side is restored symmetrically.
		if rbErr := h.debit(token, to, amount); rbErr == nil {
			h.credit(token, from, amount)
		}
		h.mu.Unlock()
		return err
	}
	return nil
}
