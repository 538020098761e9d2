package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfigIsValid(t *testing.T) {
	c := DefaultPipelineConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 3, c.Retry.MaxAttempts)
	assert.Equal(t, 5, c.Retry.BackoffSeconds)
	assert.Equal(t, 1, c.Concurrency)
	assert.Equal(t, "ProcessedMistralUpdated/processed_markers/", c.Layout.MarkerRoot)
}

func TestLoadPipelineConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	content := `storage:
  backend: memory
layout:
  input_root: incoming
  output_root: ocr
retry:
  max_attempts: 5
concurrency: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("OUT_CSV_ROOT", "ledgers")
	t.Setenv("OCR_CONCURRENCY", "6")

	c, err := LoadPipelineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Backend)
	assert.Equal(t, "incoming/", c.Layout.InputRoot)
	assert.Equal(t, "ocr/", c.Layout.OutputRoot)
	assert.Equal(t, "ledgers/", c.Layout.LedgerRoot)
	assert.Equal(t, 5, c.Retry.MaxAttempts)
	assert.Equal(t, 5, c.Retry.BackoffSeconds)
	assert.Equal(t, 6, c.Concurrency)
}

func TestLoadPipelineConfig_Errors(t *testing.T) {
	_, err := LoadPipelineConfig("/nonexistent/pipeline.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0644))
	_, err = LoadPipelineConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PipelineConfig)
		wantErr string
	}{
		{"zero attempts", func(c *PipelineConfig) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"zero concurrency", func(c *PipelineConfig) { c.Concurrency = 0 }, "concurrency"},
		{"unknown backend", func(c *PipelineConfig) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"unknown provider", func(c *PipelineConfig) { c.OCR.Provider = "tesseract" }, "ocr.provider"},
		{"unknown ledger", func(c *PipelineConfig) { c.Ledger.Backend = "sqlite" }, "ledger.backend"},
		{"empty root", func(c *PipelineConfig) { c.Layout.MarkerRoot = " " }, "layout.marker_root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultPipelineConfig()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMistralRequire(t *testing.T) {
	c := &MistralConfig{}
	require.ErrorIs(t, c.Require(), ErrMissingCredential)
	c.APIKey = "k"
	require.NoError(t, c.Require())
}
