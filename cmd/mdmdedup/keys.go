package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	mw "github.com/kiranshivaraju/mdmdedup/internal/api/middleware"
	"github.com/kiranshivaraju/mdmdedup/internal/store"
)

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	var (
		name   string
		scopes []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Database.URL == "" {
				return eris.New("DATABASE_URL is required")
			}
			raw, key, err := mw.GenerateKey(name, scopes)
			if err != nil {
				return err
			}
			pool, err := store.Connect(cmd.Context(), a.cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := store.NewPostgresStore(pool).CreateAPIKey(cmd.Context(), key); err != nil {
				return eris.Wrap(err, "store api key")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:     %s\nscopes: %v\nkey:    %s\n", key.ID, key.Scopes, raw)
			fmt.Fprintln(cmd.ErrOrStderr(), "Store this key now; it cannot be shown again.")
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "Human-readable key name")
	create.Flags().StringSliceVar(&scopes, "scope", []string{mw.ScopeAnalyze}, "Scopes to grant (analyze, rules, admin)")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	return cmd
}
