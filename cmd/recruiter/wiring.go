package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/agents"
	"github.com/jonathan/recruiting-assistant/internal/db"
	"github.com/jonathan/recruiting-assistant/internal/resolver"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

func (a *app) newInvoker() *rpc.HTTPInvoker {
	return rpc.NewHTTPInvoker(&rpc.Options{
		Timeout:  a.cfg.Timeout,
		ClientID: a.cfg.ClientID,
		Logger:   a.log,
	})
}

func (a *app) newResolver(invoker rpc.Invoker) *resolver.Resolver {
	return resolver.New(invoker, resolver.Options{
		RegistryURL: a.cfg.RegistryURL,
		Static:      a.cfg.StaticAddresses(),
		Logger:      a.log,
	})
}

// newOrchestrator wires the capability adapters to the configured endpoints.
// recorder may be nil.
func (a *app) newOrchestrator(recorder workflow.Recorder) *workflow.Orchestrator {
	invoker := a.newInvoker()
	caps := agents.New(invoker, a.newResolver(invoker), &agents.Options{
		AttachToken: a.cfg.AttachToken,
		Logger:      a.log,
	})
	return workflow.New(caps, &workflow.Options{
		SaveConcurrency: a.cfg.SaveConcurrency,
		SaveTimeout:     a.cfg.SaveTimeout,
		Recorder:        recorder,
		Logger:          a.log,
	})
}

// openDB connects to the audit database, or returns nil when none is configured.
func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, nil
	}
	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", a.cfg.RedactedDatabaseURL(), err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to prepare database schema: %w", err)
	}
	a.log.Info("run history enabled", zap.String("database", a.cfg.RedactedDatabaseURL()))
	return database, nil
}
