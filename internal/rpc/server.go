// Package rpc serves the node's JSON interface: command-style HTTP methods
// plus a websocket event stream.
package rpc

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/crclabs/backingd/internal/node"
	"github.com/crclabs/backingd/internal/storage/eventdb"
)

// Backend is everything the method handlers reach into.
type Backend struct {
	Node   *node.Node
	Events *eventdb.Store // optional event index
}

// Server handles HTTP JSON requests.
type Server struct {
	backend  Backend
	registry *MethodRegistry
	logger   *log.Logger
	timeout  time.Duration
}

// NewServer creates an RPC server over the backend with the given
// per-request timeout.
func NewServer(backend Backend, logger *log.Logger, timeout time.Duration) *Server {
	server := &Server{
		backend:  backend,
		registry: NewMethodRegistry(),
		logger:   logger,
		timeout:  timeout,
	}
	server.registerAllMethods()
	return server
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.Method == http.MethodGet {
		s.handleGetRequest(w, r)
		return
	}
	s.handlePostRequest(w, r)
}

// handleGetRequest serves simple queries like ?command=status.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("command")
	if method == "" {
		method = "status"
	}

	ctx := s.requestContext(r)
	result, rpcErr := s.executeMethod(method, nil, ctx)
	s.writeResponse(w, result, rpcErr)
}

func (s *Server) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, nil, NewError(CodeInternal, "Failed to read request body"))
		return
	}
	defer r.Body.Close()

	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		s.writeResponse(w, nil, NewError(CodeInvalidJSON, "Invalid JSON: "+err.Error()))
		return
	}
	if request.Method == "" {
		s.writeResponse(w, nil, NewError(CodeMissingMethod, "Missing method field"))
		return
	}

	// Params is an array carrying one object.
	var params json.RawMessage
	if len(request.Params) > 0 {
		params = request.Params[0]
	}

	ctx := s.requestContext(r)
	result, rpcErr := s.executeMethod(request.Method, params, ctx)
	s.writeResponse(w, result, rpcErr)
}

func (s *Server) requestContext(r *http.Request) *Context {
	ip := getClientIP(r)
	role := RoleGuest
	if isLoopback(ip) {
		role = RoleAdmin
	}
	return &Context{
		Context:  r.Context(),
		Role:     role,
		ClientIP: ip,
	}
}

func (s *Server) executeMethod(method string, params json.RawMessage, ctx *Context) (any, *Error) {
	handler, exists := s.registry.Get(method)
	if !exists {
		return nil, ErrUnknownMethod(method)
	}
	if ctx.Role < handler.RequiredRole() {
		return nil, NewError(CodeForbidden, "Method '"+method+"' requires admin access")
	}
	return handler.Handle(ctx, params)
}

// writeResponse writes the result envelope: result.status is "success" or
// "error", with error details inside the result object.
func (s *Server) writeResponse(w http.ResponseWriter, result any, rpcErr *Error) {
	response := make(map[string]any)

	if rpcErr != nil {
		response["result"] = map[string]any{
			"status":        "error",
			"error":         rpcErr.Code,
			"error_message": rpcErr.Message,
		}
	} else if resultMap, ok := result.(map[string]any); ok {
		resultMap["status"] = "success"
		response["result"] = resultMap
	} else {
		response["result"] = map[string]any{
			"status": "success",
			"data":   result,
		}
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		s.logger.Printf("marshal response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(responseData)
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
