package rpc

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// decodeParams unmarshals the single params object into dst.
func decodeParams(params json.RawMessage, dst any) *Error {
	if len(params) == 0 {
		return ErrInvalidParams("Missing params")
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return ErrInvalidParams("Invalid params: " + err.Error())
	}
	return nil
}

// parseAddress validates a 0x-prefixed 20-byte hex address.
func parseAddress(field, s string) (common.Address, *Error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrInvalidParams("Field '" + field + "' is not a valid address: " + s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount parses a non-negative decimal integer amount.
func parseAmount(field, s string) (*big.Int, *Error) {
	if s == "" {
		return nil, ErrInvalidParams("Field '" + field + "' is required")
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, ErrInvalidParams("Field '" + field + "' is not a valid amount: " + s)
	}
	return n, nil
}
