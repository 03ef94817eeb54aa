package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/recruiting-assistant/internal/server"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

// apiKeyEnv supplies the API key when --api-key is not given.
const apiKeyEnv = "RECRUITER_API_KEY"

type serveOptions struct {
	port    int
	apiKey  string
	origins string
}

func newServeCmd(a *app) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start an HTTP server exposing /run_workflow, its streaming variant, the
JSON-RPC endpoint /a2a and, when a database is configured, the run history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd, o)
		},
	}

	cmd.Flags().IntVar(&o.port, "port", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&o.apiKey, "api-key", "", "Bearer key required by the API (defaults to "+apiKeyEnv+")")
	cmd.Flags().StringVar(&o.origins, "allowed-origins", "", "Comma-separated CORS origins (default any)")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, o *serveOptions) error {
	if cmd.Flags().Changed("port") {
		a.cfg.Port = o.port
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	apiKey := o.apiKey
	if !cmd.Flags().Changed("api-key") {
		apiKey = os.Getenv(apiKeyEnv)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	// A nil *db.DB must not become a non-nil interface.
	var (
		recorder workflow.Recorder
		store    server.RunStore
	)
	if database != nil {
		defer database.Close()
		recorder, store = database, database
	}

	srv := server.New(server.Config{
		Port:           a.cfg.Port,
		APIKey:         apiKey,
		AllowedOrigins: splitList(o.origins),
		Logger:         a.log,
	}, a.newOrchestrator(recorder), store)

	return srv.Start(ctx)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
