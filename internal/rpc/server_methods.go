package rpc

import (
	"encoding/json"
	"runtime"
)

// Version is the release string reported by the version method.
const Version = "0.1.0"

type statusMethod struct{ backend Backend }

func (m *statusMethod) RequiredRole() Role { return RoleGuest }

func (m *statusMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	status := m.backend.Node.Status()
	return map[string]any{
		"factory":          status.Factory.Hex(),
		"settlement":       status.Settlement.Hex(),
		"stable_token":     status.StableToken.Hex(),
		"instances":        status.Instances,
		"supported_assets": hexAddresses(status.SupportedAssets),
		"global_release":   status.GlobalRelease,
		"slippage_bps":     status.SlippageBPS,
		"time":             status.Time,
	}, nil
}

type pingMethod struct{}

func (m *pingMethod) RequiredRole() Role { return RoleGuest }

func (m *pingMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	return map[string]any{}, nil
}

type versionMethod struct{}

func (m *versionMethod) RequiredRole() Role { return RoleGuest }

func (m *versionMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	return map[string]any{
		"version": Version,
		"go":      runtime.Version(),
	}, nil
}
