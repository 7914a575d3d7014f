package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
	"github.com/pagemill/pagemill/internal/correct"
	"github.com/pagemill/pagemill/internal/store"
)

var correctCmd = &cobra.Command{
	Use:   "correct <page-id>",
	Short: "Run the two-round LLM correction workflow on one page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		gov := a.governor()
		corrector, err := a.corrector(gov)
		if err != nil {
			return err
		}
		if corrector == nil {
			return fmt.Errorf("correction is disabled in the configuration")
		}

		page, err := a.store.GetPage(ctx, args[0])
		if err != nil {
			return err
		}
		if page.QualityStatus != store.StatusAcceptable && page.QualityStatus != store.StatusNeedsCorrection {
			return fmt.Errorf("page %s is %s; only acceptable pages can be corrected",
				page.ID, page.QualityStatus)
		}

		claimed, err := a.store.ClaimPage(ctx, page.ID, page.QualityStatus)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("page %s was claimed by another run", page.ID)
		}

		outcome, err := corrector.Correct(ctx, page)
		if err != nil {
			a.store.ReleasePage(ctx, page.ID, page.QualityStatus)
			return err
		}
		releaseTo := store.StatusAcceptable
		if outcome.Deferred() && correct.TransientDefer(outcome.DeferReason) {
			releaseTo = page.QualityStatus
		}
		if err := a.store.ReleasePage(ctx, page.ID, releaseTo); err != nil {
			return err
		}

		if outcome.Deferred() {
			return cli.Output(map[string]any{
				"page_id":  page.ID,
				"deferred": true,
				"reason":   outcome.DeferReason,
			})
		}
		return cli.Output(outcome.Record)
	},
}

var correctFlagCmd = &cobra.Command{
	Use:   "flag <page-id>",
	Short: "Flag an acceptable page for LLM correction on the next run",
	Long: `Moves an acceptable page to needs_correction so the next pipeline run
picks it up as a correction candidate. Useful after spot-checking a
batch and finding pages worth a correction pass.`,
	Args: cobra.ExactArgs(1),
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
		if page.QualityStatus != store.StatusAcceptable {
			return fmt.Errorf("page %s is %s; only acceptable pages can be flagged for correction",
				page.ID, page.QualityStatus)
		}

		claimed, err := a.store.ClaimPage(ctx, page.ID, store.StatusAcceptable)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("page %s was claimed by another run", page.ID)
		}
		if err := a.store.ReleasePage(ctx, page.ID, store.StatusNeedsCorrection); err != nil {
			return err
		}
		return cli.Output(map[string]any{
			"page_id": page.ID,
			"status":  string(store.StatusNeedsCorrection),
		})
	},
}

func init() {
	correctCmd.AddCommand(correctFlagCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <page-id>",
	Short: "Show a page's quality state and latest correction",
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

		out := map[string]any{"page": page}
		if page.HasCorrectedText {
			correction, err := a.store.LatestCorrection(ctx, page.ID)
			if err != nil && !errors.Is(err, store.ErrNoCorrection) {
				return err
			}
			if correction != nil {
				out["latest_correction"] = correction
			}
		}
		return cli.Output(out)
	},
}
