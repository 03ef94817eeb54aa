// Package agents adapts the three remote platform services (authentication,
// candidate search and record storage) to typed Go calls.
//
// Each adapter resolves its service, invokes one JSON-RPC method and checks the
// raw result against its wire schema before decoding it. Failures come back as
// typed values carrying an rpc.Kind; nothing here retries.
package agents

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/logging"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/schemas"
)

// Logical service names understood by the resolver.
const (
	AuthService    = "auth_agent"
	SearchService  = "webservice_agent"
	RecordsService = "dbservice_agent"
)

// Remote methods.
const (
	MethodLogin            = "login"
	MethodSearchCandidates = "search_candidates"
	MethodCreateRecord     = "create_record"
)

// Resolver maps a service name to an address.
type Resolver interface {
	Resolve(ctx context.Context, serviceName string) (string, error)
}

// Options configures a Client.
type Options struct {
	// AttachToken adds the session token to search and save params.
	AttachToken bool
	Logger      *zap.Logger
	// Now overrides the clock used for Session.ObtainedAt.
	Now func() time.Time
}

// Client implements the authenticate, search and save capabilities.
type Client struct {
	invoker     rpc.Invoker
	resolver    Resolver
	attachToken bool
	log         *zap.Logger
	now         func() time.Time
}

// New creates a Client. A nil opts uses defaults.
func New(invoker rpc.Invoker, resolver Resolver, opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}
	c := &Client{
		invoker:     invoker,
		resolver:    resolver,
		attachToken: opts.AttachToken,
		log:         logging.OrNop(opts.Logger).Named("agents"),
		now:         opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// call resolves service and invokes method there. Resolution failures keep
// their resolution kind.
func (c *Client) call(ctx context.Context, service, method string, params any) (json.RawMessage, error) {
	addr, err := c.resolver.Resolve(ctx, service)
	if err != nil {
		return nil, err
	}
	c.log.Debug("invoking", zap.String("service", service), zap.String("method", method), zap.String("endpoint", addr))
	return c.invoker.Invoke(ctx, addr, method, params)
}

// checkResult validates raw against the named wire schema.
func checkResult(name, method string, raw json.RawMessage) error {
	if err := schemas.Validate(name, raw); err != nil {
		return &rpc.Error{Kind: rpc.KindProtocol, Method: method, Message: "result does not match " + name, Cause: err}
	}
	return nil
}

func protocolError(method, message string, cause error) *rpc.Error {
	return &rpc.Error{Kind: rpc.KindProtocol, Method: method, Message: message, Cause: cause}
}
