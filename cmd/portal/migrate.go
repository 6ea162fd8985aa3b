package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaidashi/support-portal/internal/config"
	"github.com/vaidashi/support-portal/internal/database"
)

func newMigrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("migrate needs the %s store, got %s", config.StoreDriverPostgres, rt.cfg.StoreDriver)
			}

			db, err := database.New(cmd.Context(), rt.cfg, rt.logger)

			if err != nil {
				return err
			}

			defer db.Close()

			if err := db.RunMigrations(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
