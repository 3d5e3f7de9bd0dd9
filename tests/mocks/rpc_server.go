package mocks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RPCHandler answers a single JSON-RPC method. Returning a non-nil error
// object produces a JSON-RPC error response.
type RPCHandler func(params json.RawMessage) (result interface{}, rpcErr *RPCError)

// RPCError is a JSON-RPC 2.0 error object
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MockRPCServer is an httptest-backed JSON-RPC 2.0 server with per-method
// handlers and call recording. Batch requests are supported.
type MockRPCServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	calls    map[string][]json.RawMessage
}

// NewMockRPCServer starts a server with no methods registered
func NewMockRPCServer() *MockRPCServer {
	m := &MockRPCServer{
		handlers: make(map[string]RPCHandler),
		calls:    make(map[string][]json.RawMessage),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// Handle registers h for method
func (m *MockRPCServer) Handle(method string, h RPCHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
}

// Result registers a method that always returns result
func (m *MockRPCServer) Result(method string, result interface{}) {
	m.Handle(method, func(json.RawMessage) (interface{}, *RPCError) { return result, nil })
}

// Calls returns the params of every recorded call to method
func (m *MockRPCServer) Calls(method string) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.calls[method]...)
}

// TotalCalls returns the number of requests received across all methods
func (m *MockRPCServer) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += len(c)
	}
	return n
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (m *MockRPCServer) serve(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if len(raw) > 0 && raw[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			http.Error(w, "bad batch", http.StatusBadRequest)
			return
		}
		resps := make([]rpcResponse, 0, len(reqs))
		for _, req := range reqs {
			resps = append(resps, m.dispatch(req))
		}
		_ = json.NewEncoder(w).Encode(resps)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(m.dispatch(req))
}

func (m *MockRPCServer) dispatch(req rpcRequest) rpcResponse {
	m.mu.Lock()
	m.calls[req.Method] = append(m.calls[req.Method], req.Params)
	h, ok := m.handlers[req.Method]
	m.mu.Unlock()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &RPCError{Code: -32601, Message: "method not found: " + req.Method}
		return resp
	}
	result, rpcErr := h(req.Params)
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}
	resp.Result = result
	return resp
}
