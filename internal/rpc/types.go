package rpc

import (
	"context"
	"encoding/json"
)

// Request is the wire format: {"method": "name", "params": [{...}]}.
type Request struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

// Role-based access control. Admin methods require RoleAdmin, granted only
// to loopback connections.
//
// Guest methods that take a caller, backer or owner parameter trust the
// request value: the daemon does not authenticate protocol identities at the
// HTTP layer and expects to run behind an authenticating gateway or local
// operator tooling. The exception is sign_order, where the identity is
// proven by the signature itself. Protocol-level guards (backer-only
// release, admin-only setters, order pre-signatures) still apply to every
// call.
type Role int

const (
	RoleGuest Role = iota
	RoleAdmin
)

// Context carries request-scoped information into method handlers.
type Context struct {
	Context  context.Context
	Role     Role
	ClientIP string
}

// MethodHandler is implemented by every RPC method.
type MethodHandler interface {
	Handle(ctx *Context, params json.RawMessage) (any, *Error)
	RequiredRole() Role
}

// MethodRegistry maps method names to handlers.
type MethodRegistry struct {
	methods map[string]MethodHandler
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]MethodHandler)}
}

func (r *MethodRegistry) Register(name string, handler MethodHandler) {
	r.methods[name] = handler
}

func (r *MethodRegistry) Get(name string) (MethodHandler, bool) {
	handler, exists := r.methods[name]
	return handler, exists
}

func (r *MethodRegistry) List() []string {
	methods := make([]string, 0, len(r.methods))
	for name := range r.methods {
		methods = append(methods, name)
	}
	return methods
}

// Error codes returned in the result envelope.
const (
	CodeUnknownMethod = "unknownMethod"
	CodeInvalidParams = "invalidParams"
	CodeMissingMethod = "missingCommand"
	CodeInvalidJSON   = "jsonInvalid"
	CodeForbidden     = "forbidden"
	CodeInternal      = "internal"
	CodeRejected      = "rejected"
)

// Error is an RPC-level failure, serialized inside the result object.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"error_message"`
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func ErrUnknownMethod(method string) *Error {
	return NewError(CodeUnknownMethod, "Unknown method: "+method)
}

func ErrInvalidParams(detail string) *Error {
	return NewError(CodeInvalidParams, detail)
}

// ErrRejected wraps a protocol-level error for the client.
func ErrRejected(err error) *Error {
	return NewError(CodeRejected, err.Error())
}
