package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kconf/internal/config"
	"github.com/alfredjeanlab/kconf/internal/store/postgres"
	"github.com/alfredjeanlab/kconf/internal/store/sqlite"
	"github.com/alfredjeanlab/kconf/internal/ui"
)

var bootstrapCmd = &cobra.Command{
	Use:               "bootstrap",
	Short:             "Create the configured database and table if missing",
	GroupID:           "system",
	PersistentPreRunE: skipClient,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)

		var where string
		switch cfg.Store {
		case config.StorePostgres:
			st, err := postgres.Open(cmd.Context(), postgresOptions(cfg), logger)
			if err != nil {
				return err
			}
			if err := st.Close(); err != nil {
				return err
			}
			where = "database " + ui.RenderValue(cfg.DB.Name)
		case config.StoreSQLite:
			st, err := sqlite.Open(cmd.Context(), cfg.SQLitePath, cfg.TableName, logger)
			if err != nil {
				return err
			}
			if err := st.Close(); err != nil {
				return err
			}
			where = "file " + ui.RenderValue(cfg.SQLitePath)
		default:
			return fmt.Errorf("bootstrap requires KCONF_STORE=%s or %s (got %q)",
				config.StorePostgres, config.StoreSQLite, cfg.Store)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s table %s\n",
			ui.RenderAccent("ready:"), where, ui.RenderValue(cfg.TableName))
		return nil
	},
}
