// Package main provides the recruiter command: one-shot workflow runs, the HTTP
// API server and the local stub platform.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/config"
	"github.com/jonathan/recruiting-assistant/internal/logging"
)

// app is the state shared by every subcommand, filled in before each runs.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "recruiter",
		Short: "HR recruiting assistant",
		Long: `The recruiting assistant signs in to the recruiting platform, searches for
candidates matching a job title and skills, and saves every match as a record.

Configuration is read from --config (json, yaml or toml), then RECRUITER_* and
legacy environment variables. Command-line flags override both.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a config file (values can be overridden by other flags)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newRunCmd(a), newServeCmd(a), newResolveCmd(a), newStubsCmd(a))
	return rootCmd
}

// setup loads configuration and installs the logger. Logs go to stderr so that
// --json output stays machine readable.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}

	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.InitLog(lvl, "stderr")
	zap.ReplaceGlobals(a.log)

	if a.configPath != "" {
		a.log.Debug("loaded config", zap.String("path", a.configPath))
	}
	return nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
