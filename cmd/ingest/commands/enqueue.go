package commands

import (
	"github.com/spf13/cobra"

	"github.com/feichai0017/filing-pipeline/internal/printer"
	"github.com/feichai0017/filing-pipeline/internal/source"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

var enqueuePartitions partitionFlags

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [partition...]",
	Short: "Queue one OCR task per discovered document for the workers",
	Long: `Enqueue runs discovery like "run" but hands every document to the task
queue instead of processing it. A document already queued or running is not
queued twice.`,
	RunE: runEnqueue,
}

func init() {
	enqueuePartitions.register(enqueueCmd)
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	p := printer.NewWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	tokens, err := resolveTokens(p, &enqueuePartitions, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, log, st, err := setup(ctx)
	if err != nil {
		return p.Error("Failed to start", err.Error())
	}
	defer log.Sync()

	enum := source.NewEnumerator(st, source.Options{
		DocumentSuffix: c.Layout.DocumentSuffix,
		ArchiveSuffix:  c.Layout.ArchiveSuffix,
		ExpandArchives: c.Layout.ExpandArchives,
	}, log.Named("source"))
	d, err := enum.Discover(ctx, c.Layout.InputRoot, tokens)
	if err != nil {
		return p.Error("Discovery failed", err.Error())
	}

	q := newQueue(c)
	defer q.Close()

	var queued, duplicates, failed int
	for _, cand := range d.Candidates {
		if cand.Err != nil {
			p.Failed(cand.Ref.ID(), cand.Err.Error())
			failed++
			continue
		}
		created, err := q.Enqueue(ctx, cand.Ref)
		switch {
		case err != nil:
			log.Error("Failed to enqueue document",
				logger.String("document", cand.Ref.ID()),
				logger.Error(err),
			)
			p.Failed(cand.Ref.ID(), err.Error())
			failed++
		case created:
			queued++
		default:
			duplicates++
		}
	}

	p.Step("Queued %d documents from %d partitions (%d already queued, %d failed)",
		queued, len(d.Partitions), duplicates, failed)
	return nil
}
