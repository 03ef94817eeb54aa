// Package resolver maps logical service names to invocable addresses, consulting
// an optional registry first and a static address map second.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/recruiting-assistant/internal/logging"
	"github.com/jonathan/recruiting-assistant/internal/metrics"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/schemas"
)

// MethodGetAgent is the registry method that answers an agent card for a name.
const MethodGetAgent = "get_agent"

// Lookup sources, as reported to metrics.
const (
	sourceCache    = "cache"
	sourceRegistry = "registry"
	sourceStatic   = "static"
	sourceNone     = "none"
)

// Options configures a Resolver.
type Options struct {
	RegistryURL string            // empty disables the registry
	Static      map[string]string // fallback addresses by service name
	Logger      *zap.Logger
}

// Resolver resolves and caches service addresses. One Resolver is meant to be
// shared by every run in a process; it is safe for concurrent use.
type Resolver struct {
	invoker     rpc.Invoker
	registryURL string
	static      map[string]string
	log         *zap.Logger

	cache sync.Map // service name -> address
	group singleflight.Group
}

// New creates a resolver that talks to the registry through invoker.
func New(invoker rpc.Invoker, opts Options) *Resolver {
	static := make(map[string]string, len(opts.Static))
	for name, addr := range opts.Static {
		if addr != "" {
			static[name] = addr
		}
	}
	return &Resolver{
		invoker:     invoker,
		registryURL: opts.RegistryURL,
		static:      static,
		log:         logging.OrNop(opts.Logger).Named("resolver"),
	}
}

type lookup struct {
	address string
	source  string
}

// Resolve returns the address for serviceName. Cached answers are returned without
// any remote call. Failures are *rpc.Error values of kind resolution.
func (r *Resolver) Resolve(ctx context.Context, serviceName string) (string, error) {
	if serviceName == "" {
		return "", &rpc.Error{Kind: rpc.KindResolution, Message: "empty service name"}
	}
	if addr, ok := r.cache.Load(serviceName); ok {
		metrics.IncreaseResolverLookups(sourceCache)
		return addr.(string), nil
	}

	if r.registryURL == "" {
		addr, ok := r.static[serviceName]
		if !ok {
			metrics.IncreaseResolverLookups(sourceNone)
			return "", &rpc.Error{
				Kind:    rpc.KindResolution,
				Message: fmt.Sprintf("no address configured for %s", serviceName),
			}
		}
		metrics.IncreaseResolverLookups(sourceStatic)
		return r.store(serviceName, addr), nil
	}

	// The flight outlives any one caller; a canceled waiter must not fail the others.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(serviceName, func() (any, error) {
		return r.resolveMiss(flightCtx, serviceName)
	})
	select {
	case <-ctx.Done():
		return "", &rpc.Error{
			Kind:    rpc.KindResolution,
			Message: fmt.Sprintf("resolving %s canceled", serviceName),
			Cause:   ctx.Err(),
		}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		found := res.Val.(lookup)
		metrics.IncreaseResolverLookups(found.source)
		return found.address, nil
	}
}

// resolveMiss asks the registry, falling back to the static map. Only registry
// answers are cached so a recovering registry is consulted again.
func (r *Resolver) resolveMiss(ctx context.Context, serviceName string) (lookup, error) {
	addr, regErr := r.askRegistry(ctx, serviceName)
	if regErr == nil {
		r.log.Debug("resolved from registry", zap.String("service", serviceName), zap.String("address", addr))
		return lookup{address: r.store(serviceName, addr), source: sourceRegistry}, nil
	}

	if fallback, ok := r.static[serviceName]; ok {
		r.log.Warn("registry lookup failed, using static address",
			zap.String("service", serviceName),
			zap.String("address", fallback),
			zap.Error(regErr))
		return lookup{address: fallback, source: sourceStatic}, nil
	}

	metrics.IncreaseResolverLookups(sourceNone)
	return lookup{}, &rpc.Error{
		Kind:     rpc.KindResolution,
		Endpoint: r.registryURL,
		Method:   MethodGetAgent,
		Message:  fmt.Sprintf("no address for %s", serviceName),
		Cause:    regErr,
	}
}

type agentCard struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	URL     string `json:"url"`
}

func (r *Resolver) askRegistry(ctx context.Context, serviceName string) (string, error) {
	raw, err := r.invoker.Invoke(ctx, r.registryURL, MethodGetAgent, map[string]string{"name": serviceName})
	if err != nil {
		return "", err
	}
	if err := schemas.Validate(schemas.RegistryAgent, raw); err != nil {
		return "", &rpc.Error{Kind: rpc.KindProtocol, Endpoint: r.registryURL, Method: MethodGetAgent, Message: "unexpected agent card", Cause: err}
	}

	var card agentCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return "", &rpc.Error{Kind: rpc.KindProtocol, Endpoint: r.registryURL, Method: MethodGetAgent, Message: "unexpected agent card", Cause: err}
	}
	addr := card.Address
	if addr == "" {
		addr = card.URL
	}
	if err := ValidateAddress(addr); err != nil {
		return "", &rpc.Error{Kind: rpc.KindProtocol, Endpoint: r.registryURL, Method: MethodGetAgent, Message: "unusable address", Cause: err}
	}
	return addr, nil
}

// store caches addr unless another resolution got there first; the first write wins.
func (r *Resolver) store(serviceName, addr string) string {
	actual, _ := r.cache.LoadOrStore(serviceName, addr)
	return actual.(string)
}

// Cached returns the cached address for serviceName, if any.
func (r *Resolver) Cached(serviceName string) (string, bool) {
	addr, ok := r.cache.Load(serviceName)
	if !ok {
		return "", false
	}
	return addr.(string), true
}

// Invalidate drops the cached address for serviceName.
func (r *Resolver) Invalidate(serviceName string) {
	r.cache.Delete(serviceName)
	r.group.Forget(serviceName)
}

// Purge drops every cached address.
func (r *Resolver) Purge() {
	r.cache.Range(func(key, _ any) bool {
		r.cache.Delete(key)
		return true
	})
}

// ValidateAddress checks that addr is an absolute http(s) URL.
func ValidateAddress(addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid address %q: must be an absolute http(s) URL", addr)
	}
	return nil
}
