package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
	"github.com/pagemill/pagemill/internal/store"
)

var assessCmd = &cobra.Command{
	Use:   "assess <page-id>",
	Short: "Assess one page's OCR text quality",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		page, err := a.store.GetPage(ctx, args[0])
		if err != nil {
			return err
		}
		if page.QualityStatus == store.StatusProcessing {
			return fmt.Errorf("page %s is being processed by another run", page.ID)
		}

		claimed, err := a.store.ClaimPage(ctx, page.ID, page.QualityStatus)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("page %s was claimed by another run", page.ID)
		}

		gov := a.governor()
		assessor, err := a.assessor(gov)
		if err != nil {
			a.store.ReleasePage(ctx, page.ID, page.QualityStatus)
			return err
		}

		verdict, err := assessor.Assess(ctx, page)
		if err != nil {
			a.store.ReleasePage(ctx, page.ID, page.QualityStatus)
			return err
		}

		return cli.Output(map[string]any{
			"page_id": page.ID,
			"score":   verdict.Score,
			"status":  string(verdict.Status),
			"reasons": verdict.Reasons,
		})
	},
}
