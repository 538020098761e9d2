// Package extract turns stored OCR artifacts into insiders and securities
// CSV tables with a generative model.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/ledger"
	"github.com/feichai0017/filing-pipeline/internal/marker"
	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/printer"
	"github.com/feichai0017/filing-pipeline/internal/retry"
	"github.com/feichai0017/filing-pipeline/pkg/converters"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

const (
	statusPassed = "passed"
	statusFailed = "failed"
	unknown      = "Unknown"
)

// ErrNoMarkdown means an artifact had no markdown or text content.
var ErrNoMarkdown = errors.New("no markdown/text content found in JSON")

// Generator answers a prompt with text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Dependencies of a Service. Metrics and Printer are optional.
type Dependencies struct {
	Storage   storage.Storage
	Generator Generator
	Policy    retry.Policy
	Markers   *marker.Store
	Ledger    *ledger.Ledger
	Metrics   *metrics.Metrics
	Printer   *printer.Printer
	Logger    logger.Logger
	Closers   []io.Closer
}

type Config struct {
	TablesRoot       string
	MaxMarkdownBytes int
}

// Result is the outcome of one artifact.
type Result struct {
	Key      string
	Name     string
	Status   models.ProcessingStatus
	BankName string
	Year     string
	Presence string
	Err      error
}

type Summary struct {
	Passed  int
	Skipped int
	Failed  int
	Results []Result
}

type Service struct {
	deps   Dependencies
	config Config
	logger logger.Logger
}

func NewService(deps Dependencies, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Policy.Retryable == nil {
		deps.Policy.Retryable = ocr.IsRetryable
	}
	return &Service{deps: deps, config: cfg, logger: deps.Logger}
}

func (s *Service) Close() error {
	var errs []error
	for _, c := range s.deps.Closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// InsidersKey and SecuritiesKey are the table objects written for name.
func (s *Service) InsidersKey(name string) string {
	return s.config.TablesRoot + "insiders/" + name + ".csv"
}

func (s *Service) SecuritiesKey(name string) string {
	return s.config.TablesRoot + "securities/" + name + ".csv"
}

// ListArtifacts returns the first limit .json keys under prefix in key
// order. A limit of 0 or less returns all of them.
func (s *Service) ListArtifacts(ctx context.Context, prefix string, limit int) ([]string, error) {
	keys, _, err := storage.ListAll(ctx, s.deps.Storage, prefix, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts under %s: %w", prefix, err)
	}
	var artifacts []string
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			artifacts = append(artifacts, k)
		}
	}
	sort.Strings(artifacts)
	if limit > 0 && len(artifacts) > limit {
		artifacts = artifacts[:limit]
	}
	return artifacts, nil
}

// Run extracts tables from every artifact ListArtifacts selects. Artifacts
// that already carry an extraction marker are skipped; failures are recorded
// in the ledger and retried on the next run.
func (s *Service) Run(ctx context.Context, prefix string, limit int) (*Summary, error) {
	keys, err := s.ListArtifacts(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Starting extraction",
		logger.String("prefix", prefix),
		logger.Int("artifacts", len(keys)),
		logger.String("model", s.deps.Generator.Name()),
	)

	summary := &Summary{}
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		r := s.ExtractOne(ctx, key)
		switch r.Status {
		case models.StatusOK:
			summary.Passed++
		case models.StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		summary.Results = append(summary.Results, r)
	}
	return summary, nil
}

// ExtractOne processes a single artifact key.
func (s *Service) ExtractOne(ctx context.Context, key string) Result {
	name := strings.TrimSuffix(path.Base(key), ".json")
	ref := models.SourceRef{Key: key}
	log := s.logger.With(logger.String("artifact", key))
	r := Result{Key: key, Name: name}

	done, err := s.deps.Markers.Exists(ctx, ref)
	if err != nil {
		return s.fail(ctx, r, err, log)
	}
	if done {
		r.Status = models.StatusSkipped
		log.Info("Already extracted, skipping")
		if p := s.deps.Printer; p != nil {
			p.Skipped(name)
		}
		return r
	}

	start := time.Now()
	if err := s.extract(ctx, &r); err != nil {
		return s.fail(ctx, r, err, log)
	}

	if err := s.deps.Markers.Write(ctx, ref, s.InsidersKey(name)); err != nil {
		return s.fail(ctx, r, err, log)
	}
	r.Status = models.StatusOK
	if err := s.deps.Ledger.Append(ctx, name, statusPassed, "", r.BankName, r.Year, r.Presence); err != nil {
		log.Error("Failed to append extraction ledger", logger.Error(err))
	}

	log.Info("Tables extracted",
		logger.String("bank", r.BankName),
		logger.String("year", r.Year),
		logger.String("presence", r.Presence),
		logger.Duration("duration", time.Since(start)),
	)
	if p := s.deps.Printer; p != nil {
		p.OK(name, fmt.Sprintf("%s (%s, %s)", r.BankName, r.Year, r.Presence))
	}
	return r
}

func (s *Service) extract(ctx context.Context, r *Result) error {
	data, err := s.deps.Storage.Get(ctx, r.Key)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	md, err := converters.ArtifactMarkdown(data)
	if err != nil {
		return err
	}
	if strings.TrimSpace(md) == "" {
		return ErrNoMarkdown
	}

	prompt := BuildPrompt(md, s.config.MaxMarkdownBytes)
	policy := s.deps.Policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("Generation failed, retrying",
			logger.String("artifact", r.Key),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
	}
	var answer string
	err = policy.Do(ctx, func(ctx context.Context) error {
		a, err := s.deps.Generator.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	if err != nil {
		return err
	}

	tables, err := ParseTables(answer)
	if err != nil {
		return err
	}

	r.BankName = firstNonEmpty(tables.BankField("Bank Name"), BankName(md, r.Name), unknown)
	r.Year = firstNonEmpty(tables.BankField("Year"), FiscalYear(md, r.Name), unknown)
	r.Presence = tables.Presence()
	base := Base{BankName: r.BankName, Presence: r.Presence, PDFName: r.Name, Year: r.Year}

	insiders, err := EncodeTable(InsidersColumns, tables.Insiders, base)
	if err != nil {
		return fmt.Errorf("failed to encode insiders: %w", err)
	}
	securities, err := EncodeTable(SecuritiesColumns, tables.Shareholders, base)
	if err != nil {
		return fmt.Errorf("failed to encode securities: %w", err)
	}
	if err := s.deps.Storage.Put(ctx, s.InsidersKey(r.Name), insiders, "text/csv"); err != nil {
		return fmt.Errorf("failed to upload insiders: %w", err)
	}
	if err := s.deps.Storage.Put(ctx, s.SecuritiesKey(r.Name), securities, "text/csv"); err != nil {
		return fmt.Errorf("failed to upload securities: %w", err)
	}
	s.deps.Metrics.RecordTable("insiders", len(tables.Insiders) > 0)
	s.deps.Metrics.RecordTable("securities", len(tables.Shareholders) > 0)
	return nil
}

func (s *Service) fail(ctx context.Context, r Result, err error, log logger.Logger) Result {
	r.Status = models.StatusFailed
	r.Err = err
	log.Error("Extraction failed", logger.Error(err))
	if lerr := s.deps.Ledger.Append(ctx, r.Name, statusFailed, err.Error(), "", "", ""); lerr != nil {
		log.Error("Failed to append extraction ledger", logger.Error(lerr))
	}
	if p := s.deps.Printer; p != nil {
		p.Failed(r.Name, err.Error())
	}
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
