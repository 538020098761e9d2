package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/agent"
	"github.com/feichai0017/filing-pipeline/internal/agent/document/pdf"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/ledger"
	"github.com/feichai0017/filing-pipeline/internal/marker"
	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/internal/partition"
	"github.com/feichai0017/filing-pipeline/internal/printer"
	"github.com/feichai0017/filing-pipeline/internal/retry"
	"github.com/feichai0017/filing-pipeline/internal/source"
	"github.com/feichai0017/filing-pipeline/internal/utils/validator"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

// Option adjusts the dependencies GetService builds.
type Option func(*Dependencies)

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

// WithStorage replaces the configured object store backend.
func WithStorage(st storage.Storage) Option {
	return func(d *Dependencies) {
		d.Storage = st
	}
}

// GetService builds every collaborator from c. A missing OCR credential is
// returned here, before any document is touched.
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
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}

	client, err := agent.NewOCRClient(ctx, c.OCR, log.Named("ocr"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCR client: %w", err)
	}
	if closer, ok := client.(io.Closer); ok {
		deps.Closers = append(deps.Closers, closer)
	}
	deps.Invoker = ocr.NewInvoker(client, retry.NewLinear(c.Retry.MaxAttempts, c.Retry.Base()), log.Named("invoker"), deps.Metrics)

	store, closer, err := NewLedgerStore(c, deps.Storage, log.Named("ledger"))
	if err != nil {
		return nil, err
	}
	if closer != nil {
		deps.Closers = append(deps.Closers, closer)
	}
	deps.Success = ledger.New(store, c.Layout.SuccessLedger, ledger.SuccessHeader)
	deps.Failure = ledger.New(store, c.Layout.FailureLedger, ledger.FailureHeader)

	deps.Enumerator = source.NewEnumerator(deps.Storage, source.Options{
		DocumentSuffix: c.Layout.DocumentSuffix,
		ArchiveSuffix:  c.Layout.ArchiveSuffix,
		ExpandArchives: c.Layout.ExpandArchives,
	}, log.Named("source"))
	deps.Fetcher = source.NewFetcher(deps.Storage)
	deps.Markers = marker.NewStore(deps.Storage, c.Layout.MarkerRoot, log.Named("marker"),
		marker.WithConditionalWrites(c.Markers.Conditional))
	deps.Inferer = partition.NewInferer()

	vc := validator.DefaultConfig()
	if c.Validation.MaxFileSize > 0 {
		vc.MaxFileSize = c.Validation.MaxFileSize
	}
	deps.Validator = validator.NewDocumentValidator(log.Named("validator"), vc)
	if c.Validation.InspectPDF {
		deps.Inspector = pdf.NewProcessor(log.Named("pdf"))
	}

	log.Info("Pipeline configured",
		logger.String("storage", c.Storage.Backend),
		logger.String("ocr", client.Name()),
		logger.String("ledger", c.Ledger.Backend),
		logger.String("inputRoot", c.Layout.InputRoot),
		logger.String("outputRoot", c.Layout.OutputRoot),
		logger.Int("concurrency", c.Concurrency),
		logger.Int("maxAttempts", c.Retry.MaxAttempts),
	)

	return NewService(deps, Config{
		InputRoot:       c.Layout.InputRoot,
		OutputRoot:      c.Layout.OutputRoot,
		Concurrency:     c.Concurrency,
		VerifyArtifacts: c.Markers.VerifyArtifacts,
	}), nil
}

// NewLedgerStore builds the ledger backend named in c. The returned closer
// is nil unless the backend holds a connection.
func NewLedgerStore(c *cfg.PipelineConfig, st storage.Storage, log logger.Logger) (ledger.Store, io.Closer, error) {
	switch c.Ledger.Backend {
	case "csv":
		return ledger.NewCSVStore(st, c.Layout.LedgerRoot, log), nil, nil
	case "events":
		return ledger.NewEventStore(st, c.Layout.LedgerRoot, log), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: c.Ledger.RedisAddr,
			DB:   c.Ledger.RedisDB,
		})
		return ledger.NewRedisStore(client, ""), client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger backend: %s", c.Ledger.Backend)
	}
}
