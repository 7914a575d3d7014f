package main

import (
	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
	"github.com/pagemill/pagemill/internal/store"
)

var queueStatusFilter string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the reprocessing queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reprocessing queue entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.store.ListQueue(ctx, store.QueueStatus(queueStatusFilter))
		if err != nil {
			return err
		}
		return cli.Output(entries)
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <page-id>",
	Short: "Enqueue a page for reprocessing (no-op if already queued)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.store.Enqueue(ctx, args[0], "manual", 5)
		if err != nil {
			return err
		}
		return cli.Output(map[string]any{
			"page_id": args[0],
			"created": created,
		})
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <entry-id>",
	Short: "Move a failed queue entry back to queued",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.RetryQueueEntry(ctx, args[0]); err != nil {
			return err
		}
		return cli.Output(map[string]any{"entry_id": args[0], "status": "queued"})
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queueStatusFilter, "status", "", "filter by status: queued, processing, completed, failed")
	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueRetryCmd)
}
