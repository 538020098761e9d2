package ocr

import (
	"context"
	"time"

	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/retry"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

// Invoker calls a Client under a retry policy.
type Invoker struct {
	client  Client
	policy  retry.Policy
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewInvoker defaults the policy's Retryable to IsRetryable.
func NewInvoker(client Client, policy retry.Policy, log logger.Logger, m *metrics.Metrics) *Invoker {
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	return &Invoker{client: client, policy: policy, logger: log, metrics: m}
}

func (i *Invoker) Provider() string {
	return i.client.Name()
}

// Invoke returns the first successful result. When every attempt fails the
// error of the last attempt is returned as is.
func (i *Invoker) Invoke(ctx context.Context, data []byte, displayName string) (*models.OCRResult, error) {
	provider := i.client.Name()

	policy := i.policy
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		i.logger.Warn("OCR failed, retrying",
			logger.String("provider", provider),
			logger.String("document", displayName),
			logger.Int("attempt", attempt),
			logger.Int("maxAttempts", policy.MaxAttempts),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		i.metrics.RecordOCRRetry(provider)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	var result *models.OCRResult
	err := policy.Do(ctx, func(ctx context.Context) error {
		r, err := i.client.Process(ctx, data, displayName)
		if err == nil && r == nil {
			err = &RemoteServiceError{Provider: provider, Operation: "process", Message: "empty result", Temporary: true}
		}
		i.metrics.RecordOCRAttempt(provider, err)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
