package extract

import (
	"context"
	"fmt"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/agent/llm/vertex"
	"github.com/feichai0017/filing-pipeline/internal/ledger"
	"github.com/feichai0017/filing-pipeline/internal/marker"
	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/internal/printer"
	"github.com/feichai0017/filing-pipeline/internal/retry"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

type Option func(*Dependencies)

func WithStorage(st storage.Storage) Option {
	return func(d *Dependencies) {
		d.Storage = st
	}
}

func WithGenerator(g Generator) Option {
	return func(d *Dependencies) {
		d.Generator = g
	}
}

func WithPrinter(p *printer.Printer) Option {
	return func(d *Dependencies) {
		d.Printer = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dependencies) {
		d.Metrics = m
	}
}

// GetService builds the extraction service from c. The generator defaults
// to Vertex AI configured from the environment.
func GetService(ctx context.Context, c *cfg.PipelineConfig, log logger.Logger, opts ...Option) (*Service, error) {
	deps := Dependencies{Logger: log}
	for _, opt := range opts {
		opt(&deps)
	}

	if deps.Storage == nil {
		st, err := storage.NewStorage(ctx, storage.StorageType(c.Storage.Backend), c.Storage.Bucket, log.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		deps.Storage = st
	}
	if deps.Generator == nil {
		client, err := vertex.NewClient(ctx, cfg.GetVertexConfig(), log.Named("vertex"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
		deps.Generator = client
		deps.Closers = append(deps.Closers, client)
	}

	store, closer, err := ingest.NewLedgerStore(c, deps.Storage, log.Named("ledger"))
	if err != nil {
		return nil, err
	}
	if closer != nil {
		deps.Closers = append(deps.Closers, closer)
	}
	deps.Ledger = ledger.New(store, c.Extract.Ledger, ledger.ExtractionHeader)
	deps.Markers = marker.NewStore(deps.Storage, c.Extract.MarkerRoot, log.Named("marker"))
	deps.Policy = retry.NewLinear(c.Retry.MaxAttempts, c.Retry.Base())

	return NewService(deps, Config{
		TablesRoot:       c.Extract.TablesRoot,
		MaxMarkdownBytes: c.Extract.MaxMarkdownBytes,
	}), nil
}
