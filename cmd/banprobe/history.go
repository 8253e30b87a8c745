package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/banprobe-project/banprobe/internal/api"
	"github.com/banprobe-project/banprobe/internal/cli"
	"github.com/banprobe-project/banprobe/internal/db"
)

func newHistoryCommand() *cobra.Command {
	var (
		account string
		limit   int
		stats   bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored check results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if !a.cfg.GetHistory().Enabled {
				return fmt.Errorf("history is disabled (history.enabled in %s)", a.cfg.Path())
			}
			if err := a.openHistory(); err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if stats {
				counts, err := a.history.CountByStatus(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, counts)
				}
				cli.RenderStats(out, counts)
				return nil
			}

			var entries []db.HistoryEntry
			if account != "" {
				id, err := api.NormalizeUUID(account)
				if err != nil {
					return fmt.Errorf("invalid account uuid %q: %w", account, err)
				}
				entries, err = a.history.ForAccount(ctx, id, limit)
				if err != nil {
					return err
				}
			} else {
				entries, err = a.history.List(ctx, limit)
				if err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(out, entries)
			}
			cli.RenderHistory(out, entries, time.Local)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only show results for this account uuid")
	cmd.Flags().IntVar(&limit, "limit", db.DefaultListLimit, "maximum number of results")
	cmd.Flags().BoolVar(&stats, "stats", false, "show result counts per status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
