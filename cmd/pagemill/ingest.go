package main

import (
	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/cli"
	"github.com/pagemill/pagemill/internal/ingest"
)

var ingestBatchID string

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf> [pdf...]",
	Short: "Import scanned PDFs as a batch of unchecked pages",
	Long: `Renders every page of the given PDFs to PNG images under the data
directory and registers each as an unchecked page. Multi-part PDFs
(batch-1.pdf, batch-2.pdf, ...) are ordered by their numeric suffix.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := ingest.Ingest(ctx, a.store, a.home, ingest.Request{
			PDFPaths: args,
			BatchID:  ingestBatchID,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		return cli.Output(result)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestBatchID, "batch", "", "batch identifier (default: derived from filename)")
}
