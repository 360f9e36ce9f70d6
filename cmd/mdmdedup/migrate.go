package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(*cobra.Command, []string) error {
			if a.cfg.Database.URL == "" {
				return eris.New("DATABASE_URL is required")
			}
			if err := store.RunMigrations(a.cfg.Database.URL, a.cfg.Database.MigrationsDir); err != nil {
				return err
			}
			zap.L().Info("database migrations applied", zap.String("dir", a.cfg.Database.MigrationsDir))
			return nil
		},
	}
}
