package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

// StorageSettings selects the object store backend.
type StorageSettings struct {
	Backend string `yaml:"backend"` // s3, minio, gcs or memory
	Bucket  string `yaml:"bucket"`
}

// LayoutSettings holds every key prefix the pipeline reads or writes.
// Roots always end in "/" after Validate.
type LayoutSettings struct {
	InputRoot      string `yaml:"input_root"`
	OutputRoot     string `yaml:"output_root"`
	MarkerRoot     string `yaml:"marker_root"`
	LedgerRoot     string `yaml:"ledger_root"`
	SuccessLedger  string `yaml:"success_ledger"`
	FailureLedger  string `yaml:"failure_ledger"`
	DocumentSuffix string `yaml:"document_suffix"`
	ArchiveSuffix  string `yaml:"archive_suffix"`
	ExpandArchives bool   `yaml:"expand_archives"`
}

type OCRSettings struct {
	Provider             string `yaml:"provider"` // mistral, textract or pdftext
	Model                string `yaml:"model"`
	Endpoint             string `yaml:"endpoint"`
	SignedURLExpiryHours int    `yaml:"signed_url_expiry_hours"`
	IncludeImages        bool   `yaml:"include_images"`
	RequestTimeout       int    `yaml:"request_timeout_seconds"`
}

type RetrySettings struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

// Base returns the linear backoff unit.
func (r RetrySettings) Base() time.Duration {
	return time.Duration(r.BackoffSeconds) * time.Second
}

type LedgerSettings struct {
	Backend   string `yaml:"backend"` // csv, events or redis
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

type MarkerSettings struct {
	Conditional     bool `yaml:"conditional"`
	VerifyArtifacts bool `yaml:"verify_artifacts"`
}

type ValidationSettings struct {
	MaxFileSize int64 `yaml:"max_file_size"`
	InspectPDF  bool  `yaml:"inspect_pdf"`
}

type QueueSettings struct {
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	Concurrency int    `yaml:"concurrency"`
	Queue       string `yaml:"queue"`
}

type ServerSettings struct {
	Addr string `yaml:"addr"`
}

type ExtractSettings struct {
	TablesRoot       string `yaml:"tables_root"`
	MarkerRoot       string `yaml:"marker_root"`
	Ledger           string `yaml:"ledger"`
	MaxMarkdownBytes int    `yaml:"max_markdown_bytes"`
	Limit            int    `yaml:"limit"`
}

// PipelineConfig is the full runtime configuration of the ingestion pipeline.
type PipelineConfig struct {
	Storage     StorageSettings    `yaml:"storage"`
	Layout      LayoutSettings     `yaml:"layout"`
	OCR         OCRSettings        `yaml:"ocr"`
	Retry       RetrySettings      `yaml:"retry"`
	Ledger      LedgerSettings     `yaml:"ledger"`
	Markers     MarkerSettings     `yaml:"markers"`
	Validation  ValidationSettings `yaml:"validation"`
	Concurrency int                `yaml:"concurrency"`
	Queue       QueueSettings      `yaml:"queue"`
	Server      ServerSettings     `yaml:"server"`
	Extract     ExtractSettings    `yaml:"extract"`
	Logging     logger.Config      `yaml:"logging"`
}

// DefaultPipelineConfig mirrors the layout of the production bucket.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Storage: StorageSettings{Backend: "s3"},
		Layout: LayoutSettings{
			InputRoot:      "Unziped_Documents/",
			OutputRoot:     "CapIQMistral_Updated/",
			MarkerRoot:     "ProcessedMistralUpdated/processed_markers/",
			LedgerRoot:     "ProcessedMistralUpdated/",
			SuccessLedger:  "processed_files_CapIQ.csv",
			FailureLedger:  "failed_files_CapIQ.csv",
			DocumentSuffix: ".pdf",
			ArchiveSuffix:  ".zip",
		},
		OCR: OCRSettings{
			Provider:             "mistral",
			Model:                "mistral-ocr-latest",
			Endpoint:             "https://api.mistral.ai",
			SignedURLExpiryHours: 1,
			IncludeImages:        true,
			RequestTimeout:       300,
		},
		Retry:       RetrySettings{MaxAttempts: 3, BackoffSeconds: 5},
		Ledger:      LedgerSettings{Backend: "csv", RedisAddr: "localhost:6379"},
		Validation:  ValidationSettings{MaxFileSize: 200 << 20},
		Concurrency: 1,
		Queue: QueueSettings{
			RedisAddr:   "localhost:6379",
			Concurrency: 4,
			Queue:       "default",
		},
		Server: ServerSettings{Addr: ":8080"},
		Extract: ExtractSettings{
			TablesRoot:       "ExtractedTables/",
			MarkerRoot:       "ExtractedTables/markers/",
			Ledger:           "extracted_files.csv",
			MaxMarkdownBytes: 1 << 20,
			Limit:            20,
		},
		Logging: logger.DefaultConfig(),
	}
}

// LoadPipelineConfig reads path (when non-empty) over the defaults, then
// applies environment overrides and validates the result.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	c := DefaultPipelineConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	loadEnv()
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PipelineConfig) applyEnv() {
	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Bucket = getEnv("S3_BUCKET", c.Storage.Bucket)
	c.Layout.InputRoot = getEnv("INPUT_ROOT", c.Layout.InputRoot)
	c.Layout.OutputRoot = getEnv("OUTPUT_ROOT", c.Layout.OutputRoot)
	c.Layout.MarkerRoot = getEnv("MARKER_ROOT", c.Layout.MarkerRoot)
	c.Layout.LedgerRoot = getEnv("OUT_CSV_ROOT", c.Layout.LedgerRoot)
	c.OCR.Provider = getEnv("OCR_PROVIDER", c.OCR.Provider)
	c.OCR.Model = getEnv("OCR_MODEL", c.OCR.Model)
	c.Ledger.Backend = getEnv("LEDGER_BACKEND", c.Ledger.Backend)
	c.Ledger.RedisAddr = getEnv("REDIS_ADDR", c.Ledger.RedisAddr)
	c.Queue.RedisAddr = getEnv("REDIS_ADDR", c.Queue.RedisAddr)
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	if n, err := strconv.Atoi(getEnv("OCR_CONCURRENCY", "")); err == nil {
		c.Concurrency = n
	}
}

// Validate rejects impossible values and normalizes root prefixes.
func (c *PipelineConfig) Validate() error {
	switch c.Storage.Backend {
	case "s3", "minio", "gcs", "memory":
	default:
		return fmt.Errorf("invalid storage.backend: %q (must be 's3', 'minio', 'gcs' or 'memory')", c.Storage.Backend)
	}
	switch c.OCR.Provider {
	case "mistral", "textract", "pdftext":
	default:
		return fmt.Errorf("invalid ocr.provider: %q (must be 'mistral', 'textract' or 'pdftext')", c.OCR.Provider)
	}
	switch c.Ledger.Backend {
	case "csv", "events", "redis":
	default:
		return fmt.Errorf("invalid ledger.backend: %q (must be 'csv', 'events' or 'redis')", c.Ledger.Backend)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffSeconds < 0 {
		return fmt.Errorf("retry.backoff_seconds must be >= 0, got %d", c.Retry.BackoffSeconds)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.Layout.SuccessLedger == "" || c.Layout.FailureLedger == "" {
		return fmt.Errorf("layout.success_ledger and layout.failure_ledger are required")
	}
	if c.Layout.DocumentSuffix == "" {
		return fmt.Errorf("layout.document_suffix is required")
	}

	roots := map[string]*string{
		"layout.input_root":  &c.Layout.InputRoot,
		"layout.output_root": &c.Layout.OutputRoot,
		"layout.marker_root": &c.Layout.MarkerRoot,
		"layout.ledger_root": &c.Layout.LedgerRoot,
	}
	for name, root := range roots {
		if strings.TrimSpace(*root) == "" {
			return fmt.Errorf("%s is required", name)
		}
		*root = withSlash(*root)
	}
	if c.Extract.TablesRoot != "" {
		c.Extract.TablesRoot = withSlash(c.Extract.TablesRoot)
	}
	if c.Extract.MarkerRoot != "" {
		c.Extract.MarkerRoot = withSlash(c.Extract.MarkerRoot)
	}
	return nil
}

func withSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
