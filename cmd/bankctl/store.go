package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/seed"
	"github.com/mockbank/mockbank/internal/snapshot"
)

func seedCommand(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create seed accounts that do not exist yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := seed.Default()
			if file != "" {
				var err error
				if s, err = seed.LoadFile(file); err != nil {
					return err
				}
			}

			st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer st.db.Close()

			res, err := seed.EnsureInitialStore(cmd.Context(), account.NewService(st.accounts, st.ledger), st.ledger, s, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, existing %d, deposits %d\n", res.Created, res.Existing, res.Deposits)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file (defaults to the built-in demo accounts)")
	return cmd
}

func exportCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole store to a JSON snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer st.db.Close()

			snap, err := snapshot.Export(cmd.Context(), st.accounts, st.ledger, snapshot.Settings{
				MaxTransactionAmount:  a.cfg.MaxTransactionAmount,
				DailyTransactionLimit: a.cfg.DailyTransactionLimit,
				SessionWindow:         a.cfg.SessionWindow.String(),
				Timezone:              a.cfg.Timezone,
			}, time.Now())
			if err != nil {
				return err
			}
			if err := snapshot.SaveFile(out, snap); err != nil {
				return err
			}
			a.logger.Info("snapshot exported", "path", out, "accounts", len(snap.Users), "transactions", len(snap.Transactions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "mockbank-snapshot.json", "destination file")
	return cmd
}

func importCommand(a *app) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load accounts and history from a JSON snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := snapshot.LoadFile(in)
			if err != nil {
				return err
			}

			st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer st.db.Close()

			stats, err := snapshot.Import(cmd.Context(), st.accounts, st.ledger, snap)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts (%d skipped), %d transactions\n", stats.Accounts, stats.Skipped, stats.Transactions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "snapshot file")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
