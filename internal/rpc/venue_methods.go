package rpc

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/order"
)

type evaluateOrderMethod struct{ backend Backend }

func (m *evaluateOrderMethod) RequiredRole() Role { return RoleGuest }

func (m *evaluateOrderMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		OrderUID string `json:"order_uid"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	uid, err := order.UIDFromHex(req.OrderUID)
	if err != nil {
		return nil, ErrInvalidParams(err.Error())
	}

	terms, err := m.backend.Node.EvaluateOrder(uid)
	if err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{
		"owner":       terms.Owner.Hex(),
		"receiver":    terms.Receiver.Hex(),
		"sell_token":  terms.SellToken.Hex(),
		"sell_amount": terms.SellAmount.String(),
		"buy_token":   terms.BuyToken.Hex(),
		"buy_amount":  terms.BuyAmount.String(),
		"valid_to":    terms.ValidTo,
	}, nil
}

type fillOrderMethod struct{ backend Backend }

func (m *fillOrderMethod) RequiredRole() Role { return RoleGuest }

func (m *fillOrderMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		OrderUID  string `json:"order_uid"`
		BuyAmount string `json:"buy_amount"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	uid, err := order.UIDFromHex(req.OrderUID)
	if err != nil {
		return nil, ErrInvalidParams(err.Error())
	}
	buyAmount, rpcErr := parseAmount("buy_amount", req.BuyAmount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if err := m.backend.Node.FillOrder(uid, buyAmount); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}

type signOrderMethod struct{ backend Backend }

func (m *signOrderMethod) RequiredRole() Role { return RoleGuest }

func (m *signOrderMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		OrderUID  string `json:"order_uid"`
		Signature string `json:"signature"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	uid, err := order.UIDFromHex(req.OrderUID)
	if err != nil {
		return nil, ErrInvalidParams(err.Error())
	}
	sig := common.FromHex(req.Signature)
	if len(sig) == 0 {
		return nil, ErrInvalidParams("signature must be hex encoded")
	}

	if err := m.backend.Node.SignOrder(uid, sig); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}
