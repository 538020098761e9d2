package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/internal/agent/document/pdf/pdftest"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

func TestExtractMetadata(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger())

	meta, err := p.ExtractMetadata(context.Background(), pdftest.Build(3, "Annual Report 2019"))
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Pages)
	assert.Equal(t, "Annual Report 2019", meta.Title)
	assert.Equal(t, "Acme Bank", meta.Author)
	assert.Equal(t, "application/pdf", meta.MimeType)
	assert.Len(t, meta.Hash, 64)
}

func TestExtractMetadataRejectsGarbage(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger())

	_, err := p.ExtractMetadata(context.Background(), []byte("%PDF-1.4 truncated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed pdf")
}

func TestPageTextsOfEmptyPages(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger())

	texts, err := p.PageTexts(context.Background(), pdftest.Build(2, "x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, texts)
}
