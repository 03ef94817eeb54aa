package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// HandlerFunc serves one JSON-RPC method. Returning an *Error with KindBusiness
// produces an error response with that code; any other error is reported as an
// internal error without leaking its text.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Mux dispatches JSON-RPC requests to registered methods. It implements http.Handler.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      *zap.Logger
}

// NewMux creates an empty mux.
func NewMux(logger *zap.Logger) *Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mux{handlers: make(map[string]HandlerFunc), log: logger}
}

// Handle registers fn for method, replacing any previous registration.
func (m *Mux) Handle(method string, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = fn
}

// Methods returns the number of registered methods.
func (m *Mux) Methods() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

// ServeHTTP decodes one request envelope and writes one response envelope.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeResponse(w, http.StatusMethodNotAllowed, errorResponse(nil, CodeInvalidRequest, "only POST is supported"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "failed to read request body"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error"))
		return
	}
	status, resp := m.Dispatch(r.Context(), &req)
	writeResponse(w, status, resp)
}

// Dispatch runs the handler for req and returns the HTTP status and envelope to send.
func (m *Mux) Dispatch(ctx context.Context, req *Request) (int, *Response) {
	if req.JSONRPC != Version {
		return http.StatusBadRequest, errorResponse(req.ID, CodeInvalidRequest, "Invalid JSON-RPC version")
	}
	if req.Method == "" {
		return http.StatusBadRequest, errorResponse(req.ID, CodeInvalidRequest, "Missing method")
	}

	m.mu.RLock()
	fn, ok := m.handlers[req.Method]
	m.mu.RUnlock()
	if !ok {
		return http.StatusNotFound, errorResponse(req.ID, CodeMethodNotFound, "Method not found")
	}

	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	result, err := fn(ctx, params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) && rpcErr.Kind == KindBusiness {
			code := rpcErr.Code
			if code == 0 {
				code = CodeServerError
			}
			status := http.StatusOK
			if code == CodeInvalidParams {
				status = http.StatusBadRequest
			}
			return status, errorResponse(req.ID, code, rpcErr.Message)
		}
		m.log.Error("rpc handler failed", zap.String("method", req.Method), zap.Error(err))
		return http.StatusInternalServerError, errorResponse(req.ID, CodeInternalError, "Internal error")
	}

	raw, err := json.Marshal(result)
	if err != nil {
		m.log.Error("failed to encode rpc result", zap.String("method", req.Method), zap.Error(err))
		return http.StatusInternalServerError, errorResponse(req.ID, CodeInternalError, "Internal error")
	}
	return http.StatusOK, &Response{JSONRPC: Version, ID: echoID(req.ID), Result: raw}
}

// DecodeParams unmarshals params into v, reporting failures as invalid params.
func DecodeParams(params json.RawMessage, v any) error {
	if err := json.Unmarshal(params, v); err != nil {
		return NewInvalidParams("Invalid params: " + err.Error())
	}
	return nil
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      echoID(id),
		Error:   &ErrorObject{Code: code, Message: message},
	}
}

func echoID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func writeResponse(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
