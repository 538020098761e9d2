package commands

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feichai0017/filing-pipeline/internal/printer"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
)

var (
	runPartitions  partitionFlags
	runConcurrency int
)

var runCmd = &cobra.Command{
	Use:   "run [partition...]",
	Short: "OCR every document of the selected partitions",
	Long: `Run discovers the documents under the input-root partitions whose folder
name starts with one of the given prefixes and OCRs each one that has no
marker yet.

Partitions come from arguments, --partitions, or --partition-file. With a
partition file, --job-index (or $LSB_JOBINDEX) selects a single token so an
array job can process one partition per task.`,
	RunE: runRun,
}

func init() {
	runPartitions.register(runCmd)
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Documents processed in parallel (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	p := printer.NewWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	tokens, err := resolveTokens(p, &runPartitions, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, log, st, err := setup(ctx)
	if err != nil {
		return p.Error("Failed to start", err.Error())
	}
	defer log.Sync()
	if runConcurrency < 0 {
		return p.Error("Invalid --concurrency", "Concurrency must be at least 1.")
	}
	if runConcurrency > 0 {
		c.Concurrency = runConcurrency
	}

	svc, err := ingest.GetService(ctx, c, log, ingest.WithPrinter(p), ingest.WithStorage(st))
	if err != nil {
		return p.Error("Failed to start", err.Error())
	}
	defer svc.Close()

	p.Step("Matching partitions under %s for prefixes %v", c.Layout.InputRoot, tokens)
	summary, err := svc.Run(ctx, tokens)
	if err != nil {
		return p.Error("Discovery failed", err.Error())
	}
	if len(summary.Partitions) == 0 {
		p.Warning("No partitions under %s match %v", c.Layout.InputRoot, tokens)
	}
	return nil
}

// resolveTokens combines positional partitions with the partition flags and
// prints the error for an empty selection.
func resolveTokens(p *printer.Printer, f *partitionFlags, args []string) ([]string, error) {
	explicit := append(append([]string{}, f.partitions...), args...)
	tokens, err := ResolvePartitions(explicit, f.file, f.jobIndex, os.Getenv)
	if errors.Is(err, ErrJobIndexOutOfRange) {
		return nil, p.Error("Nothing to do", err.Error())
	}
	if err != nil {
		return nil, p.Error("Cannot read partitions", err.Error())
	}
	if len(tokens) == 0 {
		return nil, p.Error("No partitions provided",
			"Select at least one input-root partition to process.",
			"pass prefixes: ingest run 2001 2022_Q4",
			"use --partition-file with --job-index or $LSB_JOBINDEX",
		)
	}
	return tokens, nil
}
