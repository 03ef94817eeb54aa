package rpc

import (
	"errors"
	"fmt"
)

// Kind classifies a failure anywhere in the workflow.
type Kind string

const (
	// KindValidation means the input was rejected before any remote call.
	KindValidation Kind = "validation"
	// KindTimeout means no response arrived within the deadline.
	KindTimeout Kind = "timeout"
	// KindTransport covers connection, DNS and HTTP-layer failures.
	KindTransport Kind = "transport"
	// KindProtocol means the response was malformed or structurally invalid.
	KindProtocol Kind = "protocol"
	// KindBusiness means a well-formed response reported a domain failure.
	KindBusiness Kind = "business"
	// KindResolution means the endpoint for a service could not be determined.
	KindResolution Kind = "resolution"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeServerError is the default code for business failures raised by handlers.
	CodeServerError = -32000
)

// Error is a classified RPC failure.
type Error struct {
	Kind     Kind
	Endpoint string
	Method   string
	Code     int // JSON-RPC error code, business failures only
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("%s error", e.Kind)
	if e.Method != "" {
		prefix = fmt.Sprintf("%s error calling %s", e.Kind, e.Method)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// NewBusinessError builds a business failure for use by server-side handlers.
func NewBusinessError(message string) *Error {
	return &Error{Kind: KindBusiness, Code: CodeServerError, Message: message}
}

// NewInvalidParams builds a business failure with the invalid-params code.
func NewInvalidParams(message string) *Error {
	return &Error{Kind: KindBusiness, Code: CodeInvalidParams, Message: message}
}
