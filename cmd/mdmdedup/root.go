package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/config"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "mdmdedup",
		Short:         "Duplicate decision engine for customer master data",
		Long:          "mdmdedup decides whether pairs of customer records describe the same entity, using business rules and a failover chain of language-model providers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if err := config.InitLogger(cfg.Log); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = zap.L().Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default ./config.yaml or /etc/mdmdedup/config.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newAnalyzeCmd(a),
		newRulesCmd(a),
		newProvidersCmd(a),
		newKeysCmd(a),
		newMigrateCmd(a),
	)
	return root
}
