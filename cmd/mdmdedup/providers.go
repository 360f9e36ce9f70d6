package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai/factory"
)

func newProvidersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect configured AI providers",
	}

	var check bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Print provider priority, health and the current selection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := factory.BuildRegistry(cmd.Context(), a.cfg.AI, zap.L())
			if err != nil {
				return err
			}
			if check {
				reg.RunHealthChecks(cmd.Context(), a.cfg.AI.InferenceTimeout)
			}
			return printJSON(cmd.OutOrStdout(), reg.Status())
		},
	}
	status.Flags().BoolVar(&check, "check", false, "Probe every provider before reporting")
	cmd.AddCommand(status)
	return cmd
}
