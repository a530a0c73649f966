package rpc

import (
	"encoding/json"
)

type balanceMethod struct{ backend Backend }

func (m *balanceMethod) RequiredRole() Role { return RoleGuest }

func (m *balanceMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Owner string `json:"owner"`
		Token string `json:"token"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", req.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress("token", req.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]any{
		"owner":   owner.Hex(),
		"token":   token.Hex(),
		"balance": m.backend.Node.BalanceOf(owner, token).String(),
	}, nil
}

type registerAvatarMethod struct{ backend Backend }

func (m *registerAvatarMethod) RequiredRole() Role { return RoleGuest }

func (m *registerAvatarMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Address string `json:"address"`
		Human   bool   `json:"human"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", req.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := m.backend.Node.RegisterAvatar(addr, req.Human); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}

type approveMethod struct{ backend Backend }

func (m *approveMethod) RequiredRole() Role { return RoleGuest }

func (m *approveMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Token   string `json:"token"`
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress("token", req.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", req.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddress("spender", req.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", req.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := m.backend.Node.Approve(token, owner, spender, amount); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}
