package main

import (
	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
)

var reviewLimit int

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Triage pages flagged for human review",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages needing manual review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pages, err := a.store.ListNeedsReview(ctx, reviewLimit)
		if err != nil {
			return err
		}
		return cli.Output(pages)
	},
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve <page-id>",
	Short: "Clear the manual-review flag after a human has checked the page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.SetNeedsManualReview(ctx, args[0], false); err != nil {
			return err
		}
		return cli.Output(map[string]any{"page_id": args[0], "needs_manual_review": false})
	},
}

var reviewResetCmd = &cobra.Command{
	Use:   "reset <page-id>",
	Short: "Move a failed page back to unchecked for another full pass",
	Long: `Deliberately resets a terminal failed page: status returns to
unchecked and the rescan attempt counter is cleared. This is the only
path out of the failed state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.ResetForRetry(ctx, args[0]); err != nil {
			return err
		}
		return cli.Output(map[string]any{"page_id": args[0], "status": "unchecked"})
	},
}

func init() {
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 100, "max pages to list")
	reviewCmd.AddCommand(reviewListCmd, reviewResolveCmd, reviewResetCmd)
}
