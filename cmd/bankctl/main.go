// Command bankctl runs maintenance tasks against the bank's Postgres store:
// schema migrations, seeding and snapshot export/import.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/config"
	"github.com/mockbank/mockbank/internal/infra"
	"github.com/mockbank/mockbank/internal/ledger"
	"github.com/mockbank/mockbank/internal/logging"
)

// app carries what every subcommand needs once the root pre-run has loaded it.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

// store is a connected Postgres backend.
type store struct {
	db       *pgxpool.Pool
	accounts account.Repository
	ledger   ledger.Ledger
}

func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set for %s", cmd.CommandPath())
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.AppName, cfg.LogLevel, cfg.IsDevelopment())
	return nil
}

func (a *app) connect(ctx context.Context) (*store, error) {
	node, err := snowflake.NewNode(a.cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	db, err := infra.NewPostgresPool(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &store{
		db:       db,
		accounts: account.NewPostgresRepository(db),
		ledger:   ledger.NewPostgresLedger(db, ledger.WithNode(node)),
	}, nil
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "bankctl",
		Short:             "MockBank maintenance commands",
		SilenceUsage:      true,
		PersistentPreRunE: a.preRun,
	}
	root.AddCommand(migrateCommands(a))
	root.AddCommand(seedCommand(a))
	root.AddCommand(exportCommand(a))
	root.AddCommand(importCommand(a))
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
