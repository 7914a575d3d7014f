package main

import (
	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
	"github.com/pagemill/pagemill/internal/pipeline"
)

var (
	runWorkers   int
	runBatchSize int
	runLimit     int
	runDryRun    bool
	runNoCorrect bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process candidate pages through the quality pipeline",
	Long: `Selects unchecked and flagged pages and drives each through quality
assessment, bounded rescanning and optional LLM correction.

A daily rate limit or an exhausted budget stops the run gracefully; a
scheduled re-run picks up where this one left off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		gov := a.governor()
		assessor, err := a.assessor(gov)
		if err != nil {
			return err
		}
		rescanner := a.rescanner(assessor)

		correctionEnabled := !runNoCorrect
		corrector, err := a.corrector(gov)
		if err != nil {
			return err
		}
		if corrector == nil {
			correctionEnabled = false
		}

		opts := pipeline.Options{
			Workers:           a.cfg.Pipeline.Workers,
			BatchSize:         a.cfg.Pipeline.BatchSize,
			Limit:             runLimit,
			DryRun:            runDryRun,
			CorrectionEnabled: correctionEnabled,
		}
		if runWorkers > 0 {
			opts.Workers = runWorkers
		}
		if runBatchSize > 0 {
			opts.BatchSize = runBatchSize
		}

		p := pipeline.New(a.store, assessor, rescanner, corrector, gov, opts, a.logger)
		result, err := p.Run(ctx)
		if err != nil {
			return err
		}
		return cli.Output(result)
	},
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "worker pool size (default from config)")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "max candidates per run (default from config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "hard cap on pages examined this run")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "list candidates without processing")
	runCmd.Flags().BoolVar(&runNoCorrect, "no-correct", false, "skip the LLM correction stage")
}
