package rpc

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/storage/statestore"
)

func hexAddresses(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

// instanceResult renders an instance snapshot for the wire.
func instanceResult(rec *statestore.InstanceRecord) map[string]any {
	return map[string]any{
		"address":         rec.Address.Hex(),
		"backer":          rec.Backer.Hex(),
		"backing_asset":   rec.BackingAsset.Hex(),
		"personal_token":  rec.PersonalToken.Hex(),
		"personal_amount": rec.PersonalAmount.String(),
		"stable_amount":   rec.StableAmount.String(),
		"order_uid":       rec.OrderUID,
		"order": map[string]any{
			"sell_token":  rec.OrderParams.SellToken.Hex(),
			"sell_amount": rec.OrderParams.SellAmount.String(),
			"buy_token":   rec.OrderParams.BuyToken.Hex(),
			"buy_amount":  rec.OrderParams.BuyAmount.String(),
			"valid_to":    rec.OrderParams.ValidTo,
		},
		"pool":      rec.Pool.Hex(),
		"unlock_at": rec.UnlockAt,
	}
}

type deriveInstanceMethod struct{ backend Backend }

func (m *deriveInstanceMethod) RequiredRole() Role { return RoleGuest }

func (m *deriveInstanceMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Backer string `json:"backer"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	backer, rpcErr := parseAddress("backer", req.Backer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]any{
		"backer":   backer.Hex(),
		"instance": m.backend.Node.DeriveInstanceAddress(backer).Hex(),
	}, nil
}

type instanceMethod struct{ backend Backend }

func (m *instanceMethod) RequiredRole() Role { return RoleGuest }

func (m *instanceMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Instance string `json:"instance"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("instance", req.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, err := m.backend.Node.InstanceState(addr)
	if err != nil {
		return nil, ErrRejected(err)
	}
	return instanceResult(rec), nil
}

type instancesMethod struct{ backend Backend }

func (m *instancesMethod) RequiredRole() Role { return RoleGuest }

func (m *instancesMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	addrs := m.backend.Node.InstanceAddresses()
	return map[string]any{
		"count":     len(addrs),
		"instances": hexAddresses(addrs),
	}, nil
}

// depositMethod submits a backing deposit for the given backer. The backer
// parameter is trusted as-is; see the Role doc for the identity model.
type depositMethod struct{ backend Backend }

func (m *depositMethod) RequiredRole() Role { return RoleGuest }

func (m *depositMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Backer string `json:"backer"`
		Asset  string `json:"asset"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	backer, rpcErr := parseAddress("backer", req.Backer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAddress("asset", req.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}

	addr, err := m.backend.Node.Deposit(backer, asset)
	if err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{"instance": addr.Hex()}, nil
}

type resetOrderMethod struct{ backend Backend }

func (m *resetOrderMethod) RequiredRole() Role { return RoleGuest }

func (m *resetOrderMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Instance string `json:"instance"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("instance", req.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := m.backend.Node.ResetOrder(addr); err != nil {
		return nil, ErrRejected(err)
	}
	rec, err := m.backend.Node.InstanceState(addr)
	if err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{"order_uid": rec.OrderUID}, nil
}

type createPoolMethod struct{ backend Backend }

func (m *createPoolMethod) RequiredRole() Role { return RoleGuest }

func (m *createPoolMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Instance string `json:"instance"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("instance", req.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := m.backend.Node.CreatePool(addr); err != nil {
		return nil, ErrRejected(err)
	}
	rec, err := m.backend.Node.InstanceState(addr)
	if err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{
		"pool":      rec.Pool.Hex(),
		"unlock_at": rec.UnlockAt,
	}, nil
}

// releaseMethod releases pool receipts for the asserted caller. The caller
// parameter is trusted as-is; see the Role doc for the identity model. The
// protocol still rejects callers other than the recorded backer.
type releaseMethod struct{ backend Backend }

func (m *releaseMethod) RequiredRole() Role { return RoleGuest }

func (m *releaseMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Caller    string `json:"caller"`
		Instance  string `json:"instance"`
		Recipient string `json:"recipient"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", req.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	instance, rpcErr := parseAddress("instance", req.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	recipient := caller
	if req.Recipient != "" {
		if recipient, rpcErr = parseAddress("recipient", req.Recipient); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if err := m.backend.Node.ReleasePoolTokens(caller, instance, recipient); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}
