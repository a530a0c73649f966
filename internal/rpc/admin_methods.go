package rpc

import (
	"encoding/json"
)

// Admin methods act with the configured factory admin identity; the HTTP
// layer restricts them to admin-role connections.

type setSupportedAssetMethod struct{ backend Backend }

func (m *setSupportedAssetMethod) RequiredRole() Role { return RoleAdmin }

func (m *setSupportedAssetMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Asset     string `json:"asset"`
		Supported bool   `json:"supported"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAddress("asset", req.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	admin := m.backend.Node.Factory().Config().Admin
	if err := m.backend.Node.SetSupportedAsset(admin, asset, req.Supported); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}

type setGlobalReleaseMethod struct{ backend Backend }

func (m *setGlobalReleaseMethod) RequiredRole() Role { return RoleAdmin }

func (m *setGlobalReleaseMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Timestamp int64 `json:"timestamp"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	admin := m.backend.Node.Factory().Config().Admin
	if err := m.backend.Node.SetGlobalReleaseTimestamp(admin, req.Timestamp); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}

type setSlippageMethod struct{ backend Backend }

func (m *setSlippageMethod) RequiredRole() Role { return RoleAdmin }

func (m *setSlippageMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		BPS uint32 `json:"bps"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	admin := m.backend.Node.Factory().Config().Admin
	if err := m.backend.Node.SetSlippageBPS(admin, req.BPS); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}

type registerTokenMethod struct{ backend Backend }

func (m *registerTokenMethod) RequiredRole() Role { return RoleAdmin }

func (m *registerTokenMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Token    string `json:"token"`
		Decimals uint8  `json:"decimals"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress("token", req.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	m.backend.Node.RegisterToken(token, req.Decimals)
	return map[string]any{}, nil
}

type mintMethod struct{ backend Backend }

func (m *mintMethod) RequiredRole() Role { return RoleAdmin }

func (m *mintMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Token  string `json:"token"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress("token", req.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", req.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", req.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	admin := m.backend.Node.Factory().Config().Admin
	if err := m.backend.Node.Mint(admin, token, to, amount); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}
