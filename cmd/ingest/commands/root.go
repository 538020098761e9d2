package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Filing ingestion pipeline",
	Long: `ingest runs regulatory filing PDFs from an object store through OCR.

Documents are discovered under year partitions of the input root, OCR'd with
retries, written back as JSON artifacts and recorded in CSV ledgers. A marker
per document makes reruns skip finished work.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the pipeline YAML config (defaults plus environment when empty)")
}

// enqueuer is the part of the task queue the CLI uses.
type enqueuer interface {
	Enqueue(ctx context.Context, ref models.SourceRef) (bool, error)
	Close() error
}

// Constructors replaced in tests.
var (
	newLogger = func(c *cfg.PipelineConfig) (logger.Logger, error) {
		return logger.NewLogger(
			logger.WithConfig(c.Logging),
			logger.WithOutputPaths(fileOutputs(c.Logging.OutputPaths)),
		)
	}
	newStorage = func(ctx context.Context, c *cfg.PipelineConfig, log logger.Logger) (storage.Storage, error) {
		return storage.NewStorage(ctx, storage.StorageType(c.Storage.Backend), c.Storage.Bucket, log.Named("storage"))
	}
	newQueue = func(c *cfg.PipelineConfig) enqueuer {
		return queue.NewAsynqQueue(&queue.QueueConfig{
			RedisAddr: c.Queue.RedisAddr,
			RedisDB:   c.Queue.RedisDB,
			Queue:     c.Queue.Queue,
		})
	}
)

// fileOutputs drops stdout from the log outputs; stdout carries the progress
// lines.
func fileOutputs(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p != "stdout" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"logs/ingest.log"}
	}
	return out
}

// setup loads the config, the logger and the object store.
func setup(ctx context.Context) (*cfg.PipelineConfig, logger.Logger, storage.Storage, error) {
	c, err := cfg.LoadPipelineConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(c)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := newStorage(ctx, c, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return c, log, st, nil
}
