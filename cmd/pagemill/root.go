package main

import (
	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
	"github.com/pagemill/pagemill/version"
)

var (
	cfgFile      string
	homeDirFlag  string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "pagemill",
	Short: "OCR quality-convergence pipeline for scanned document archives",
	Long: `Pagemill drives scanned document pages to the best text obtainable
within a bounded retry and cost budget.

Every page moves through quality assessment, bounded rescanning with
escalating OCR strategies, and an optional two-round LLM correction
workflow with confidence scoring. All state lives in a local SQLite
database, so runs are resumable and safe to overlap with a cron job.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pagemill/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDirFlag, "home", "", "pagemill home directory (default: ~/.pagemill)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cli.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(
		runCmd,
		assessCmd,
		correctCmd,
		showCmd,
		statusCmd,
		queueCmd,
		reviewCmd,
		ingestCmd,
		initCmd,
		versionCmd,
	)
}
