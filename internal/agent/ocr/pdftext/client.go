// Package pdftext is an offline OCR client that returns the embedded text
// layer of a PDF. It is meant for local runs and tests against documents
// that already carry text.
package pdftext

import (
	"context"
	"errors"

	"github.com/feichai0017/filing-pipeline/internal/agent/document/pdf"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

const provider = "pdftext"

type Client struct {
	pdf    *pdf.Processor
	logger logger.Logger
}

func NewClient(log logger.Logger) *Client {
	return &Client{pdf: pdf.NewProcessor(log), logger: log}
}

func (c *Client) Name() string { return provider }

// Process never retries a malformed document.
func (c *Client) Process(ctx context.Context, data []byte, displayName string) (*models.OCRResult, error) {
	texts, err := c.pdf.PageTexts(ctx, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &ocr.RemoteServiceError{Provider: provider, Operation: "extract", Temporary: false, Err: err}
	}

	result := &models.OCRResult{
		Model:     provider,
		UsageInfo: &models.UsageInfo{PagesProcessed: len(texts), DocSizeBytes: int64(len(data))},
	}
	for i, text := range texts {
		result.Pages = append(result.Pages, models.OCRPage{Index: i, Markdown: text})
	}

	c.logger.Debug("Text layer extracted",
		logger.String("document", displayName),
		logger.Int("pages", len(texts)),
	)
	return result, nil
}
