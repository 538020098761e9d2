// Package ingest runs the per-document OCR pipeline: discover, check the
// marker, fetch, infer the year, call OCR, upload the artifact, write the
// marker, append the ledger.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/filing-pipeline/internal/agent/document/pdf"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/ledger"
	"github.com/feichai0017/filing-pipeline/internal/marker"
	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/partition"
	"github.com/feichai0017/filing-pipeline/internal/printer"
	"github.com/feichai0017/filing-pipeline/internal/source"
	"github.com/feichai0017/filing-pipeline/internal/utils/validator"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

// Dependencies are the collaborators of a Service. Inspector, Printer and
// Metrics are optional.
type Dependencies struct {
	Storage    storage.Storage
	Enumerator *source.Enumerator
	Fetcher    *source.Fetcher
	Markers    *marker.Store
	Invoker    *ocr.Invoker
	Inferer    *partition.Inferer
	Validator  *validator.DocumentValidator
	Inspector  *pdf.Processor
	Success    *ledger.Ledger
	Failure    *ledger.Ledger
	Metrics    *metrics.Metrics
	Printer    *printer.Printer
	Logger     logger.Logger
	Clock      func() time.Time
	Closers    []io.Closer
}

type Config struct {
	InputRoot       string
	OutputRoot      string
	Concurrency     int
	VerifyArtifacts bool
}

// Outcome is the result of one document. Err is a *StageError when Status is
// failed. LedgerErr is set when the outcome could not be recorded.
type Outcome struct {
	Ref       models.SourceRef
	Status    models.ProcessingStatus
	Stage     models.Stage
	Year      string
	OutputKey string
	Pages     int
	Err       error
	LedgerErr error
	Duration  time.Duration
}

type Summary struct {
	RunID      string
	Partitions []string
	OK         int
	Skipped    int
	Failed     int
	Outcomes   []Outcome
}

func (s *Summary) add(o Outcome) {
	switch o.Status {
	case models.StatusOK:
		s.OK++
	case models.StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}

type Service struct {
	deps   Dependencies
	config Config
	logger logger.Logger
	now    func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{deps: deps, config: cfg, logger: deps.Logger, now: now}
}

func (s *Service) Storage() storage.Storage       { return s.deps.Storage }
func (s *Service) Markers() *marker.Store         { return s.deps.Markers }
func (s *Service) Inferer() *partition.Inferer    { return s.deps.Inferer }
func (s *Service) Metrics() *metrics.Metrics      { return s.deps.Metrics }
func (s *Service) Enumerator() *source.Enumerator { return s.deps.Enumerator }
func (s *Service) InputRoot() string              { return s.config.InputRoot }

// Ledger returns the success or failure ledger by name.
func (s *Service) Ledger(name string) (*ledger.Ledger, bool) {
	switch name {
	case "success":
		return s.deps.Success, true
	case "failure":
		return s.deps.Failure, true
	}
	return nil, false
}

func (s *Service) Close() error {
	var errs []error
	for _, c := range s.deps.Closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Discover lists the candidates under the partitions matching tokens.
func (s *Service) Discover(ctx context.Context, tokens []string) (*source.Discovery, error) {
	if len(tokens) == 0 {
		return nil, ErrNoPartitions
	}
	d, err := s.deps.Enumerator.Discover(ctx, s.config.InputRoot, tokens)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	return d, nil
}

// Run discovers and processes every candidate. Only discovery errors are
// returned; document failures are reported in the summary.
func (s *Service) Run(ctx context.Context, tokens []string) (*Summary, error) {
	d, err := s.Discover(ctx, tokens)
	if err != nil {
		return nil, err
	}
	if p := s.deps.Printer; p != nil {
		p.Step("Found %d matching partitions, %d documents to consider", len(d.Partitions), len(d.Candidates))
	}
	summary := s.ProcessAll(ctx, d.Candidates)
	summary.Partitions = d.Partitions
	return summary, nil
}

// ProcessAll runs one task per candidate on a pool of Config.Concurrency
// workers. Outcomes keep the order of candidates. Candidates not yet started
// when ctx is canceled are left out.
func (s *Service) ProcessAll(ctx context.Context, candidates []source.Candidate) *Summary {
	runID := uuid.New().String()
	log := s.logger.With(logger.String("run", runID))
	log.Info("Starting run",
		logger.Int("documents", len(candidates)),
		logger.Int("concurrency", s.config.Concurrency),
	)

	outcomes := make([]*Outcome, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, c := range candidates {
		if ctx.Err() != nil {
			log.Warn("Run canceled, not starting remaining documents", logger.Int("remaining", len(candidates)-i))
			break
		}
		g.Go(func() error {
			var o Outcome
			if c.Err != nil {
				o = s.fail(ctx, Outcome{Ref: c.Ref}, models.StageFetching, c.Err)
				s.report(o)
			} else {
				o = s.ProcessOne(ctx, c.Ref)
			}
			outcomes[i] = &o
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{RunID: runID}
	for _, o := range outcomes {
		if o != nil {
			summary.add(*o)
		}
	}

	log.Info("Run finished",
		logger.Int("ok", summary.OK),
		logger.Int("skipped", summary.Skipped),
		logger.Int("failed", summary.Failed),
	)
	if p := s.deps.Printer; p != nil {
		p.Summary(summary.OK, summary.Skipped, summary.Failed)
	}
	return summary
}

// ProcessOne drives a single document through the state machine. It never
// returns an error: failures are recorded in the failure ledger and reported
// on the outcome, and no marker is written for them.
func (s *Service) ProcessOne(ctx context.Context, ref models.SourceRef) Outcome {
	done := s.deps.Metrics.Track()
	defer done()

	start := s.now()
	out := s.process(ctx, ref)
	out.Duration = s.now().Sub(start)
	s.report(out)
	return out
}

func (s *Service) report(out Outcome) {
	s.deps.Metrics.RecordDocument(string(out.Status), out.Duration)
	p := s.deps.Printer
	if p == nil {
		return
	}
	switch out.Status {
	case models.StatusOK:
		p.OK(out.Ref.ID(), out.OutputKey)
	case models.StatusSkipped:
		p.Skipped(out.Ref.ID())
	default:
		p.Failed(out.Ref.ID(), failureMessage(out.Err))
	}
}

func (s *Service) process(ctx context.Context, ref models.SourceRef) Outcome {
	out := Outcome{Ref: ref, Stage: models.StageDiscovered}
	log := s.logger.With(logger.String("document", ref.ID()))

	out.Stage = models.StageMarkerCheck
	exists, err := s.deps.Markers.Exists(ctx, ref)
	if err != nil {
		return s.fail(ctx, out, models.StageMarkerCheck, err)
	}
	if exists {
		skip, err := s.shouldSkip(ctx, ref, log)
		if err != nil {
			return s.fail(ctx, out, models.StageMarkerCheck, err)
		}
		if skip {
			out.Status = models.StatusSkipped
			out.Stage = models.StageSkipped
			log.Debug("Already processed, skipping")
			return out
		}
	}

	out.Stage = models.StageFetching
	doc, err := s.deps.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return s.fail(ctx, out, models.StageFetching, err)
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.Validate(ref.Name(), doc.Data).Err(); err != nil {
			return s.fail(ctx, out, models.StageFetching, err)
		}
	}
	if s.deps.Inspector != nil {
		meta, err := s.deps.Inspector.ExtractMetadata(ctx, doc.Data)
		if err != nil {
			return s.fail(ctx, out, models.StageFetching, err)
		}
		if s.deps.Validator != nil {
			if err := s.deps.Validator.CheckPageCount(meta.Pages); err != nil {
				return s.fail(ctx, out, models.StageFetching, err)
			}
		}
		out.Pages = meta.Pages
	}

	out.Stage = models.StageInferring
	folderYear := partition.LeadingYear(ref.Partition)
	if ref.Partition == "" && ref.Archive == "" {
		folderYear = partition.FolderYear(s.config.InputRoot, ref.Key)
	}
	year, rule := s.deps.Inferer.InferWithRule(ref.Stem(), folderYear)
	out.Year = year
	out.OutputKey = OutputKey(s.config.OutputRoot, year, ref.Stem())
	log.Debug("Inferred year",
		logger.String("year", year),
		logger.String("rule", rule),
		logger.String("outputKey", out.OutputKey),
	)

	out.Stage = models.StageInvoking
	result, err := s.deps.Invoker.Invoke(ctx, doc.Data, ref.Stem())
	if err != nil {
		return s.fail(ctx, out, models.StageInvoking, err)
	}
	if out.Pages == 0 {
		out.Pages = len(result.Pages)
	}

	out.Stage = models.StageUploading
	artifact, err := models.EncodeArtifact(models.OutputArtifact{
		Source:    models.ArtifactSource{PDFKey: ref.Key, Archive: ref.Archive},
		OCROutput: result,
	})
	if err != nil {
		return s.fail(ctx, out, models.StageUploading, fmt.Errorf("failed to encode artifact: %w", err))
	}
	if err := s.deps.Storage.Put(ctx, out.OutputKey, artifact, "application/json"); err != nil {
		return s.fail(ctx, out, models.StageUploading, err)
	}

	out.Stage = models.StageMarkerWriting
	if err := s.deps.Markers.Write(ctx, ref, out.OutputKey); err != nil {
		return s.fail(ctx, out, models.StageMarkerWriting, err)
	}

	// The document is done from here on; a ledger error does not undo it.
	out.Stage = models.StageLedgerAppending
	out.Status = models.StatusOK
	err = s.deps.Success.Append(ctx,
		ref.ID(),
		year,
		out.OutputKey,
		ref.Archive,
		strconv.Itoa(out.Pages),
		s.now().UTC().Format(time.RFC3339),
	)
	s.deps.Metrics.RecordLedgerAppend("success", err)
	if err != nil {
		out.LedgerErr = err
		log.Error("Failed to record success", logger.Error(err))
	}

	out.Stage = models.StageDone
	log.Info("Document processed",
		logger.String("year", year),
		logger.String("outputKey", out.OutputKey),
		logger.Int("pages", out.Pages),
	)
	return out
}

// shouldSkip decides on a document whose marker exists. Without artifact
// verification the marker alone is trusted.
func (s *Service) shouldSkip(ctx context.Context, ref models.SourceRef, log logger.Logger) (bool, error) {
	if !s.config.VerifyArtifacts {
		return true, nil
	}
	m, err := s.deps.Markers.Read(ctx, ref)
	if err != nil {
		return false, err
	}
	err = s.deps.Storage.Head(ctx, m.JSONKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("Marker present but artifact missing, reprocessing", logger.String("outputKey", m.JSONKey))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) fail(ctx context.Context, out Outcome, stage models.Stage, err error) Outcome {
	out.Status = models.StatusFailed
	out.Err = &StageError{Stage: stage, Err: err}

	msg := failureMessage(out.Err)
	s.logger.Error("Document failed",
		logger.String("document", out.Ref.ID()),
		logger.String("stage", string(stage)),
		logger.Error(err),
	)

	// Recorded even when the run is being canceled.
	lerr := s.deps.Failure.Append(context.WithoutCancel(ctx), out.Ref.ID(), msg)
	s.deps.Metrics.RecordLedgerAppend("failure", lerr)
	if lerr != nil {
		out.LedgerErr = lerr
		s.logger.Error("Failed to record failure",
			logger.String("document", out.Ref.ID()),
			logger.Error(lerr),
		)
	}
	out.Stage = models.StageFailed
	return out
}
