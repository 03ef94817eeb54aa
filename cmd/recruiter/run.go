package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/recruiting-assistant/internal/observability"
	"github.com/jonathan/recruiting-assistant/internal/types"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

// passwordEnv supplies the password when --password is not given, keeping it
// out of the process list.
const passwordEnv = "RECRUITER_PASSWORD"

type runOptions struct {
	username    string
	password    string
	title       string
	skills      string
	jsonOutput  bool
	verbose     bool
	concurrency int
	timeout     time.Duration
	registry    string
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recruiting workflow once",
		Long: `Signs in, searches for candidates matching --title and --skills, and saves
each match. Prints the run report; exits non-zero when the run fails.

The password is read from --password or the ` + passwordEnv + ` environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runWorkflow(cmd, o)
		},
	}

	cmd.Flags().StringVarP(&o.username, "username", "u", "", "Platform username")
	cmd.Flags().StringVarP(&o.password, "password", "p", "", "Platform password (defaults to "+passwordEnv+")")
	cmd.Flags().StringVarP(&o.title, "title", "t", "", "Job title to search for")
	cmd.Flags().StringVarP(&o.skills, "skills", "s", "", "Comma-separated required skills")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Print progress while the run executes")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "Saves in flight at once (overrides config)")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Per-call timeout (overrides config)")
	cmd.Flags().StringVar(&o.registry, "registry", "", "Agent registry URL (overrides config)")
	return cmd
}

func (a *app) runWorkflow(cmd *cobra.Command, o *runOptions) error {
	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("concurrency") {
		a.cfg.SaveConcurrency = o.concurrency
	}
	if cmd.Flags().Changed("timeout") {
		a.cfg.Timeout = o.timeout
	}
	if cmd.Flags().Changed("registry") {
		a.cfg.RegistryURL = o.registry
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	password := o.password
	if !cmd.Flags().Changed("password") {
		password = os.Getenv(passwordEnv)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	var recorder workflow.Recorder
	if database != nil {
		defer database.Close()
		recorder = database
	}

	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(out)
	req := workflow.Request{
		Credentials: types.Credentials{Username: o.username, Password: password},
		Criteria:    types.SearchCriteria{Title: o.title, Skills: types.ParseSkills(o.skills)},
	}
	if o.verbose {
		progress := observability.NewPrinter(cmd.ErrOrStderr())
		req.OnProgress = progress.PrintProgress
	}

	report := a.newOrchestrator(recorder).Run(ctx, req)

	if o.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else {
		printer.PrintCriteria(report.Criteria)
		printer.PrintReport(report)
		fmt.Fprintln(out, report.Summary()) //nolint:errcheck
	}

	if report.Failed() {
		return fmt.Errorf("run %s ended in state %s", report.RunID, report.State)
	}
	return nil
}
