package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/metrics"
)

// DefaultTimeout bounds a single call when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Invoker sends a single JSON-RPC request to an endpoint and returns the raw
// result, or a classified *Error.
type Invoker interface {
	Invoke(ctx context.Context, endpoint, method string, params any) (json.RawMessage, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, endpoint, method string, params any) (json.RawMessage, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, endpoint, method string, params any) (json.RawMessage, error) {
	return f(ctx, endpoint, method, params)
}

// Options configures an HTTPInvoker.
type Options struct {
	Timeout    time.Duration
	ClientID   string // prefix for generated correlation ids; random UUIDs when empty
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPInvoker is an Invoker that POSTs envelopes over HTTP.
type HTTPInvoker struct {
	timeout  time.Duration
	clientID string
	client   *http.Client
	log      *zap.Logger
}

// NewHTTPInvoker creates an invoker. A nil opts uses defaults.
func NewHTTPInvoker(opts *Options) *HTTPInvoker {
	if opts == nil {
		opts = &Options{}
	}
	inv := &HTTPInvoker{
		timeout:  opts.Timeout,
		clientID: opts.ClientID,
		client:   opts.HTTPClient,
		log:      opts.Logger,
	}
	if inv.timeout <= 0 {
		inv.timeout = DefaultTimeout
	}
	if inv.client == nil {
		inv.client = &http.Client{}
	}
	if inv.log == nil {
		inv.log = zap.NewNop()
	}
	return inv
}

// Timeout returns the per-call deadline.
func (c *HTTPInvoker) Timeout() time.Duration {
	return c.timeout
}

type requestIDKey struct{}

// WithRequestID returns a context whose next Invoke uses id as the correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

var requestCounter atomic.Uint64

func (c *HTTPInvoker) nextID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	if c.clientID != "" {
		return c.clientID + "-" + strconv.FormatUint(requestCounter.Add(1), 10)
	}
	return uuid.NewString()
}

// Invoke performs the call. Params are never logged; they may carry secrets.
func (c *HTTPInvoker) Invoke(ctx context.Context, endpoint, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.invoke(ctx, endpoint, method, params)
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	metrics.ObserveRPCCall(method, outcome, time.Since(start))
	return result, err
}

func (c *HTTPInvoker) invoke(ctx context.Context, endpoint, method string, params any) (json.RawMessage, error) {
	id := c.nextID(ctx)
	req, err := NewRequest(method, params, id)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Method: method, Message: "failed to encode request", Cause: err}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Method: method, Message: "failed to encode request", Cause: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Endpoint: endpoint, Method: method, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.log.Debug("rpc call", zap.String("endpoint", endpoint), zap.String("method", method), zap.String("id", id))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.classifyDoError(ctx, callCtx, endpoint, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Endpoint: endpoint, Method: method, Message: fmt.Sprintf("no response within %s", c.timeout), Cause: err}
		}
		return nil, &Error{Kind: KindTransport, Endpoint: endpoint, Method: method, Message: "failed to read response body", Cause: err}
	}

	var envelope Response
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A non-2xx answer that still carries a proper error envelope is the
		// remote service reporting a failure; anything else is a protocol breach.
		if decodeErr == nil && envelope.Error != nil && envelope.Result == nil {
			return nil, businessError(endpoint, method, envelope.Error)
		}
		return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Method: method, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	if decodeErr != nil {
		return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Method: method, Message: "malformed JSON response", Cause: decodeErr}
	}
	if reason, ok := envelope.check(req.ID); !ok {
		return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Method: method, Message: reason}
	}
	if envelope.Error != nil {
		return nil, businessError(endpoint, method, envelope.Error)
	}

	c.log.Debug("rpc success", zap.String("endpoint", endpoint), zap.String("method", method), zap.String("id", id))
	return envelope.Result, nil
}

func (c *HTTPInvoker) classifyDoError(parent, callCtx context.Context, endpoint, method string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return &Error{Kind: KindTransport, Endpoint: endpoint, Method: method, Message: "call canceled", Cause: parent.Err()}
	case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil:
		return &Error{Kind: KindTimeout, Endpoint: endpoint, Method: method, Message: fmt.Sprintf("no response within %s", c.timeout), Cause: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Endpoint: endpoint, Method: method, Message: "network timeout", Cause: err}
	default:
		return &Error{Kind: KindTransport, Endpoint: endpoint, Method: method, Message: fmt.Sprintf("cannot reach %s", endpoint), Cause: err}
	}
}

func businessError(endpoint, method string, obj *ErrorObject) *Error {
	msg := obj.Message
	if msg == "" {
		msg = "unknown remote error"
	}
	return &Error{Kind: KindBusiness, Endpoint: endpoint, Method: method, Code: obj.Code, Message: msg}
}
