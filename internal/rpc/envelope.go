// Package rpc implements the JSON-RPC 2.0 contract used to reach the remote
// platform services: request/response envelopes, an HTTP invoker that classifies
// every failure, and a small server-side method mux.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version spoken on the wire.
const Version = "2.0"

// Request is the JSON-RPC request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// ErrorObject is the error member of a JSON-RPC response.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is the JSON-RPC response envelope. Exactly one of Result or Error is
// present in a well-formed response; a JSON null result still counts as present.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// NewRequest builds a request envelope with a string id.
func NewRequest(method string, params any, id string) (*Request, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	if params == nil {
		rawParams = json.RawMessage(`{}`)
	}
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal id: %w", err)
	}
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  rawParams,
		ID:      rawID,
	}, nil
}

// check verifies the structural invariants of a decoded response against the id
// that was sent. It returns a human-readable reason when the response is invalid.
func (r *Response) check(sentID json.RawMessage) (string, bool) {
	if r.JSONRPC == "" {
		return "response is missing the jsonrpc member", false
	}
	if r.JSONRPC != Version {
		return fmt.Sprintf("unsupported jsonrpc version %q", r.JSONRPC), false
	}
	hasResult := r.Result != nil
	hasError := r.Error != nil
	switch {
	case hasResult && hasError:
		return "response carries both result and error", false
	case !hasResult && !hasError:
		return "response carries neither result nor error", false
	}
	// Some servers answer errors with a null id (e.g. parse errors); only a
	// non-null id that differs from ours is a mismatch.
	if len(r.ID) > 0 && !bytes.Equal(r.ID, []byte("null")) && !sameID(r.ID, sentID) {
		return fmt.Sprintf("response id %s does not match request id %s", r.ID, sentID), false
	}
	return "", true
}

// sameID compares two JSON ids by value so that formatting differences do not matter.
func sameID(a, b json.RawMessage) bool {
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return bytes.Equal(a, b)
	}
	return fmt.Sprint(av) == fmt.Sprint(bv)
}
