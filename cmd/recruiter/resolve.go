package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/agents"
)

func newResolveCmd(a *app) *cobra.Command {
	var registry string
	cmd := &cobra.Command{
		Use:   "resolve [NAME...]",
		Short: "Resolve service names to endpoint addresses",
		Long: `Resolves each service name through the agent registry, falling back to the
configured static address. With no names, resolves the three platform services.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("registry") {
				a.cfg.RegistryURL = registry
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if len(args) == 0 {
				args = []string{agents.AuthService, agents.SearchService, agents.RecordsService}
			}

			res := a.newResolver(a.newInvoker())
			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range args {
				addr, err := res.Resolve(cmd.Context(), name)
				if err != nil {
					failed++
					a.log.Debug("resolution failed", zap.String("service", name), zap.Error(err))
					fmt.Fprintf(out, "%s\tunresolved: %v\n", name, err) //nolint:errcheck
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", name, addr) //nolint:errcheck
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d services could not be resolved", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&registry, "registry", "", "Agent registry URL (overrides config)")
	return cmd
}
