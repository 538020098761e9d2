package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ingest.log")

	log, err := NewLogger(
		WithLevel("debug"),
		WithEncoding("console"),
		WithOutputPaths([]string{path}),
		WithErrorPaths([]string{"stderr"}),
	)
	require.NoError(t, err)

	log.Named("test").Info("hello", String("k", "v"))
	require.FileExists(t, path)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stdout"}))
	require.Error(t, err)
}

func TestWithConfigOverlaysNonZeroFields(t *testing.T) {
	cfg := DefaultConfig()
	WithConfig(Config{Level: "warn", MaxAge: 30})(&cfg)

	require.Equal(t, "warn", cfg.Level)
	require.Equal(t, 30, cfg.MaxAge)
	require.Equal(t, "json", cfg.Encoding)
	require.Equal(t, 100, cfg.MaxSize)
}

func TestWithConfigCanDisableCompression(t *testing.T) {
	in := DefaultConfig()
	in.Compress = false
	in.Development = true

	cfg := DefaultConfig()
	WithConfig(in)(&cfg)
	require.False(t, cfg.Compress)
	require.True(t, cfg.Development)

	in.Development = false
	WithConfig(in)(&cfg)
	require.False(t, cfg.Development)
}

func TestTestLoggerSharesEntriesAcrossChildren(t *testing.T) {
	log := NewTestLogger()
	child := log.Named("ingest").With(String("run", "r1"))

	child.Warn("slow")
	log.Info("root")

	entries := log.GetEntries()
	require.Len(t, entries, 2)
	require.Equal(t, "ingest", entries[0].Logger)
	require.Len(t, entries[0].Fields, 1)
	require.Equal(t, []string{"slow"}, log.Messages("WARN"))

	log.Clear()
	require.Empty(t, log.GetEntries())
}
