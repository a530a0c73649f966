package rpc

import (
	"encoding/json"
)

type reportPriceMethod struct{ backend Backend }

func (m *reportPriceMethod) RequiredRole() Role { return RoleAdmin }

func (m *reportPriceMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var req struct {
		Token    string `json:"token"`
		Price    string `json:"price"`
		Decimals uint8  `json:"decimals"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress("token", req.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount("price", req.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	admin := m.backend.Node.Factory().Config().Admin
	if err := m.backend.Node.ReportPrice(admin, token, price, req.Decimals); err != nil {
		return nil, ErrRejected(err)
	}
	return map[string]any{}, nil
}
