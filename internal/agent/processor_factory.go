package agent

import (
	"context"
	"fmt"
	"time"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr/mistral"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr/pdftext"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr/textract"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

// NewOCRClient builds the OCR client named by settings.Provider. Missing
// credentials are reported before any document is touched.
func NewOCRClient(ctx context.Context, settings cfg.OCRSettings, log logger.Logger) (ocr.Client, error) {
	log.Info("Creating OCR client", logger.String("provider", settings.Provider))

	switch settings.Provider {
	case "mistral":
		mc := cfg.GetMistralConfig()
		if err := mc.Require(); err != nil {
			return nil, err
		}
		endpoint := settings.Endpoint
		if mc.Endpoint != "" {
			endpoint = mc.Endpoint
		}
		return mistral.NewClient(mistral.Config{
			APIKey:               mc.APIKey,
			Endpoint:             endpoint,
			Model:                settings.Model,
			SignedURLExpiryHours: settings.SignedURLExpiryHours,
			IncludeImages:        settings.IncludeImages,
			Timeout:              time.Duration(settings.RequestTimeout) * time.Second,
		}, log.Named("mistral")), nil
	case "textract":
		client, err := textract.NewClient(ctx, textract.Config{
			MinConfidence: 80.0,
			EnableTables:  true,
		}, log.Named("textract"))
		if err != nil {
			return nil, fmt.Errorf("failed to create textract client: %w", err)
		}
		return client, nil
	case "pdftext":
		return pdftext.NewClient(log.Named("pdftext")), nil
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", settings.Provider)
	}
}
