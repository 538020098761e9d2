package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feichai0017/filing-pipeline/internal/printer"
	"github.com/feichai0017/filing-pipeline/internal/service/extract"
)

var (
	extractPrefix string
	extractLimit  int
)

// newGenerator overrides the Vertex AI client when set.
var newGenerator func() extract.Generator

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract insiders and securities tables from OCR artifacts",
	Long: `Extract reads the OCR JSON artifacts under --prefix in key order, asks the
model for the FR Y-6 insiders and securities tables, and writes one CSV per
table and artifact under the tables root. Extracted artifacts are marked and
skipped on later runs.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractPrefix, "prefix", "", "Artifact prefix, e.g. CapIQMistral_Updated/2023/ (default: the output root)")
	extractCmd.Flags().IntVar(&extractLimit, "limit", -1, "Maximum artifacts per run, 0 for all (default from config)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	p := printer.NewWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, log, st, err := setup(ctx)
	if err != nil {
		return p.Error("Failed to start", err.Error())
	}
	defer log.Sync()

	opts := []extract.Option{extract.WithStorage(st), extract.WithPrinter(p)}
	if newGenerator != nil {
		opts = append(opts, extract.WithGenerator(newGenerator()))
	}
	svc, err := extract.GetService(ctx, c, log, opts...)
	if err != nil {
		return p.Error("Failed to start", err.Error(),
			"set GCP_PROJECT_ID and GCP_REGION for Vertex AI",
			"check application default credentials (gcloud auth application-default login)",
		)
	}
	defer svc.Close()

	prefix := extractPrefix
	if prefix == "" {
		prefix = c.Layout.OutputRoot
	}
	limit := extractLimit
	if limit < 0 {
		limit = c.Extract.Limit
	}

	p.Step("Extracting tables from %s (limit %d)", prefix, limit)
	summary, err := svc.Run(ctx, prefix, limit)
	if err != nil {
		return p.Error("Listing failed", err.Error())
	}
	p.Summary(summary.Passed, summary.Skipped, summary.Failed)
	return nil
}
