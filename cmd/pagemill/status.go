package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show page counts by quality status and 24-hour spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.store.CountByStatus(ctx)
		if err != nil {
			return err
		}
		spent, err := a.store.SpendSince(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			return err
		}

		byStatus := make(map[string]int, len(counts))
		for status, n := range counts {
			byStatus[string(status)] = n
		}

		return cli.Output(map[string]any{
			"pages":              byStatus,
			"spend_last_24h_usd": spent,
			"max_daily_cost_usd": a.cfg.Budget.MaxDailyCostUSD,
		})
	},
}
