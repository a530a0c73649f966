// Package order constructs the economic terms of a backing swap and
// implements the conditional-order hook the settlement venue polls before
// filling. Construction is pure and always succeeds; validation happens at
// evaluation time because the venue may poll repeatedly, and conditions
// (balance, asset support, expiry) can change between polls.
package order

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind is the trade direction. Backing orders always sell a fixed stable
// amount, so only KindSell is produced here.
type Kind string

// BalanceMode selects how a leg is settled. Direct mode moves token balances
// without intermediate vault accounting.
type BalanceMode string

const (
	KindSell Kind = "sell"

	BalanceDirect BalanceMode = "erc20"
)

// UID identifies an order at the settlement venue: digest ‖ owner ‖ validTo.
type UID [56]byte

// Hex renders the UID with a 0x prefix, the form used in venue APIs and logs.
func (u UID) Hex() string {
	return "0x" + common.Bytes2Hex(u[:])
}

// IsZero reports whether the UID is unset.
func (u UID) IsZero() bool {
	return u == UID{}
}

// Digest returns the order digest embedded in the uid, the value owners sign
// to authorize settlement.
func (u UID) Digest() common.Hash {
	return common.BytesToHash(u[:32])
}

// UIDFromHex parses the 0x-prefixed form produced by Hex.
func UIDFromHex(s string) (UID, error) {
	var u UID
	b := common.FromHex(s)
	if len(b) != len(u) {
		return UID{}, fmt.Errorf("order: uid must be %d bytes, got %d", len(u), len(b))
	}
	copy(u[:], b)
	return u, nil
}

// Terms are the full economic terms of an order as the venue consumes them.
type Terms struct {
	Owner             common.Address
	Receiver          common.Address
	SellToken         common.Address
	BuyToken          common.Address
	SellAmount        *big.Int
	BuyAmount         *big.Int
	ValidTo           int64 // unix seconds, inclusive
	AppData           common.Hash
	FeeAmount         *big.Int
	Kind              Kind
	PartiallyFillable bool
	SellTokenBalance  BalanceMode
	BuyTokenBalance   BalanceMode
}

// Build constructs order terms. Fill-or-kill, zero fee, direct-balance
// settlement on both legs; the receiver is always the owner itself so the
// bought asset lands on the instance before pool creation.
func Build(owner, sellToken common.Address, sellAmount *big.Int, buyToken common.Address, buyAmount *big.Int, validTo int64, appData common.Hash) Terms {
	return Terms{
		Owner:             owner,
		Receiver:          owner,
		SellToken:         sellToken,
		BuyToken:          buyToken,
		SellAmount:        new(big.Int).Set(sellAmount),
		BuyAmount:         new(big.Int).Set(buyAmount),
		ValidTo:           validTo,
		AppData:           appData,
		FeeAmount:         new(big.Int),
		Kind:              KindSell,
		PartiallyFillable: false,
		SellTokenBalance:  BalanceDirect,
		BuyTokenBalance:   BalanceDirect,
	}
}

// Digest hashes the economic fields of the order.
func (t Terms) Digest() common.Hash {
	validTo := make([]byte, 8)
	binary.BigEndian.PutUint64(validTo, uint64(t.ValidTo))

	var fillable byte
	if t.PartiallyFillable {
		fillable = 1
	}

	return crypto.Keccak256Hash(
		t.Owner.Bytes(),
		t.Receiver.Bytes(),
		t.SellToken.Bytes(),
		t.BuyToken.Bytes(),
		common.BigToHash(t.SellAmount).Bytes(),
		common.BigToHash(t.BuyAmount).Bytes(),
		validTo,
		t.AppData.Bytes(),
		common.BigToHash(t.FeeAmount).Bytes(),
		[]byte(t.Kind),
		[]byte{fillable},
		[]byte(t.SellTokenBalance),
		[]byte(t.BuyTokenBalance),
	)
}

// UID combines the digest with owner and validTo, mirroring the venue's
// order identifier layout.
func (t Terms) UID() UID {
	var uid UID
	d := t.Digest()
	copy(uid[:32], d[:])
	copy(uid[32:52], t.Owner.Bytes())
	binary.BigEndian.PutUint32(uid[52:], uint32(t.ValidTo))
	return uid
}

// StaticParams is the opaque parameter blob handed to the venue at
// registration time and passed back verbatim on every Evaluate poll.
type StaticParams struct {
	SellToken  common.Address `json:"sellToken"`
	SellAmount *big.Int       `json:"sellAmount"`
	BuyToken   common.Address `json:"buyToken"`
	BuyAmount  *big.Int       `json:"buyAmount"`
	ValidTo    int64          `json:"validTo"`
	AppData    common.Hash    `json:"appData"`
}

// Encode serializes static parameters for venue registration.
func (p StaticParams) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodeStaticParams parses a registration-time parameter blob.
func DecodeStaticParams(data []byte) (StaticParams, error) {
	var p StaticParams
	if err := json.Unmarshal(data, &p); err != nil {
		return StaticParams{}, fmt.Errorf("order: decode static params: %w", err)
	}
	if p.SellAmount == nil || p.BuyAmount == nil {
		return StaticParams{}, fmt.Errorf("order: decode static params: missing amounts")
	}
	return p, nil
}

// Env is what evaluation needs to observe from the outside world.
type Env interface {
	// BalanceOf returns the owner's spendable balance of a token.
	BalanceOf(owner, token common.Address) *big.Int

	// IsSupportedAsset reports whether the factory currently accepts the
	// token as a backing asset. Support can be revoked after registration.
	IsSupportedAsset(token common.Address) bool
}

// Evaluate re-validates the order at poll time and returns fully-formed
// terms, or a *Rejected error naming why the order is not currently
// fillable. The buy amount is the one fixed at construction time; it is not
// re-estimated here.
func Evaluate(owner common.Address, params StaticParams, env Env, now time.Time) (Terms, error) {
	if now.Unix() > params.ValidTo {
		return Terms{}, &Rejected{Code: RejectOrderExpired, Detail: fmt.Sprintf("validTo %d passed", params.ValidTo)}
	}
	if !env.IsSupportedAsset(params.BuyToken) {
		return Terms{}, &Rejected{Code: RejectAssetUnsupported, Detail: params.BuyToken.Hex()}
	}
	if have := env.BalanceOf(owner, params.SellToken); have.Cmp(params.SellAmount) < 0 {
		return Terms{}, &Rejected{
			Code:   RejectBalanceInsufficient,
			Detail: fmt.Sprintf("have %s, want %s", have, params.SellAmount),
		}
	}
	return Build(owner, params.SellToken, params.SellAmount, params.BuyToken, params.BuyAmount, params.ValidTo, params.AppData), nil
}
