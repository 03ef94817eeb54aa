// Package stubs provides in-memory versions of the platform services the
// workflow talks to: auth, candidate search, records and the agent registry.
// They speak the same JSON-RPC methods as the real services and back local
// runs and end-to-end tests.
package stubs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/agents"
	"github.com/jonathan/recruiting-assistant/internal/config"
	"github.com/jonathan/recruiting-assistant/internal/logging"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/types"
)

// Mount points of the services on the platform handler.
const (
	AuthPath     = "/auth/a2a"
	SearchPath   = "/web/a2a"
	RecordsPath  = "/db/a2a"
	RegistryPath = "/registry/a2a"
)

// DefaultUsers are the accounts of a platform created without Options.Users.
var DefaultUsers = map[string]string{
	"hr_admin": "changeme",
}

// Options configures a Platform.
type Options struct {
	Users   map[string]string // username -> plaintext password, hashed at construction
	Catalog []types.Candidate // defaults to DefaultCatalog
	// RequireToken makes search and records reject calls without a valid token.
	RequireToken bool
	Config       *config.StubConfig
	Logger       *zap.Logger
	Now          func() time.Time
}

// Platform bundles the four stub services.
type Platform struct {
	Auth     *rpc.Mux
	Search   *rpc.Mux
	Records  *rpc.Mux
	Registry *rpc.Mux

	cfg          *config.StubConfig
	requireToken bool
	log          *zap.Logger
	now          func() time.Time

	users   map[string]string // username -> bcrypt hash
	catalog []types.Candidate

	mu       sync.Mutex
	records  map[string]record // keyed by lower-cased name
	agents   map[string]string
	sequence int
}

// New creates a platform with hashed users and a seeded catalog.
func New(opts *Options) (*Platform, error) {
	if opts == nil {
		opts = &Options{}
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.NewStubConfig(); err != nil {
			return nil, err
		}
	}
	users := opts.Users
	if users == nil {
		users = DefaultUsers
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := logging.OrNop(opts.Logger)

	p := &Platform{
		cfg:          cfg,
		requireToken: opts.RequireToken,
		log:          log,
		now:          now,
		users:        make(map[string]string, len(users)),
		catalog:      catalog,
		records:      make(map[string]record),
		agents:       make(map[string]string),
	}
	for name, pw := range users {
		hash, err := cfg.HashPassword(pw)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", name, err)
		}
		p.users[name] = hash
	}

	p.Auth = rpc.NewMux(log.Named("auth"))
	p.Auth.Handle(agents.MethodLogin, p.login)

	p.Search = rpc.NewMux(log.Named("search"))
	p.Search.Handle(agents.MethodSearchCandidates, p.searchCandidates)

	p.Records = rpc.NewMux(log.Named("records"))
	p.Records.Handle(agents.MethodCreateRecord, p.createRecord)

	p.Registry = rpc.NewMux(log.Named("registry"))
	p.Registry.Handle(methodGetAgent, p.getAgent)

	return p, nil
}

// Handler mounts the services at their paths.
func (p *Platform) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(AuthPath, p.Auth)
	mux.Handle(SearchPath, p.Search)
	mux.Handle(RecordsPath, p.Records)
	mux.Handle(RegistryPath, p.Registry)
	return logging.Middleware(p.log, "stubs")(mux)
}

// Addresses returns the service addresses under baseURL, keyed by service name.
func Addresses(baseURL string) map[string]string {
	return map[string]string{
		agents.AuthService:    baseURL + AuthPath,
		agents.SearchService:  baseURL + SearchPath,
		agents.RecordsService: baseURL + RecordsPath,
	}
}

// RegisterAll registers the three services, served under baseURL, with the registry.
func (p *Platform) RegisterAll(baseURL string) {
	for name, addr := range Addresses(baseURL) {
		p.Register(name, addr)
	}
}

// Serve serves the platform on ln until ctx is done, registering the services
// under the listener's address first.
func (p *Platform) Serve(ctx context.Context, ln net.Listener) error {
	p.RegisterAll("http://" + ln.Addr().String())

	srv := &http.Server{
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
