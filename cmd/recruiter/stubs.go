package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/agents"
	"github.com/jonathan/recruiting-assistant/internal/config"
	"github.com/jonathan/recruiting-assistant/internal/stubs"
)

type stubsOptions struct {
	host         string
	port         int
	requireToken bool
}

func newStubsCmd(a *app) *cobra.Command {
	o := &stubsOptions{}
	cmd := &cobra.Command{
		Use:   "stubs",
		Short: "Run the in-memory platform services for local use",
		Long: `Serves stub auth, search, records and registry services from one listener and
prints the environment variables that point the assistant at them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStubs(cmd, o)
		},
	}
	cmd.Flags().StringVar(&o.host, "host", "127.0.0.1", "Interface to listen on")
	cmd.Flags().IntVar(&o.port, "port", 8100, "Port to listen on")
	cmd.Flags().BoolVar(&o.requireToken, "require-token", false, "Reject search and save calls without a valid session token")
	return cmd
}

func (a *app) runStubs(cmd *cobra.Command, o *stubsOptions) error {
	stubCfg, err := config.NewStubConfig()
	if err != nil {
		return err
	}
	platform, err := stubs.New(&stubs.Options{
		RequireToken: o.requireToken,
		Config:       stubCfg,
		Logger:       a.log,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(o.host, fmt.Sprint(o.port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	base := "http://" + ln.Addr().String()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# stub platform environment") //nolint:errcheck
	for _, line := range stubEnv(base, o.requireToken) {
		fmt.Fprintln(out, line) //nolint:errcheck
	}
	a.log.Info("stub platform listening", zap.String("addr", base))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return platform.Serve(ctx, ln)
}

// stubEnv returns export lines pointing the assistant at a platform under base.
func stubEnv(base string, attachToken bool) []string {
	addrs := stubs.Addresses(base)
	lines := []string{
		"export AUTH_AGENT_URL=" + addrs[agents.AuthService],
		"export WEBSERVICE_AGENT_URL=" + addrs[agents.SearchService],
		"export DBSERVICE_AGENT_URL=" + addrs[agents.RecordsService],
		"export A2A_REGISTRY_URL=" + base + stubs.RegistryPath,
	}
	if attachToken {
		lines = append(lines, "export RECRUITER_ATTACH_TOKEN=true")
	}
	users := make([]string, 0, len(stubs.DefaultUsers))
	for name := range stubs.DefaultUsers {
		users = append(users, name)
	}
	sort.Strings(users)
	for _, name := range users {
		lines = append(lines, fmt.Sprintf("# user %s, password %s", name, stubs.DefaultUsers[name]))
	}
	return lines
}
