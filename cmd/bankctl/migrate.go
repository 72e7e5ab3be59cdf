package main

import (
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/mockbank/mockbank/internal/infra"
)

func migrateCommands(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	var max int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := infra.Migrate(a.cfg.DatabaseURL, migrate.Up, max)
			if err != nil {
				return err
			}
			a.logger.Info("migrations applied", "count", n)
			return nil
		},
	}
	up.Flags().IntVar(&max, "max", 0, "maximum number of migrations to apply (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			n, err := infra.Migrate(a.cfg.DatabaseURL, migrate.Down, steps)
			if err != nil {
				return err
			}
			a.logger.Info("migrations rolled back", "count", n)
			return nil
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back (0 = all)")

	cmd.AddCommand(up, down)
	return cmd
}
