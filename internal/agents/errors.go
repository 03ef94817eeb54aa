package agents

import (
	"errors"
	"fmt"

	"github.com/jonathan/recruiting-assistant/internal/rpc"
)

// AuthFailure is returned when a login attempt does not produce a session.
type AuthFailure struct {
	Reason string
	Kind   rpc.Kind
	Cause  error
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("authentication failed (%s): %s", e.Kind, e.Reason)
}

func (e *AuthFailure) Unwrap() error {
	return e.Cause
}

// SearchFailure is returned when the candidate search cannot produce a list.
type SearchFailure struct {
	Reason string
	Kind   rpc.Kind
	Cause  error
}

func (e *SearchFailure) Error() string {
	return fmt.Sprintf("candidate search failed (%s): %s", e.Kind, e.Reason)
}

func (e *SearchFailure) Unwrap() error {
	return e.Cause
}

// reason renders err for a result record. Business failures carry the remote
// message verbatim; everything else keeps its classification prefix.
func reason(err error) string {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.Kind == rpc.KindBusiness {
		return rpcErr.Message
	}
	return err.Error()
}

// kindOf defaults unclassified errors to transport.
func kindOf(err error) rpc.Kind {
	if kind := rpc.KindOf(err); kind != "" {
		return kind
	}
	return rpc.KindTransport
}
