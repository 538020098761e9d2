// Package ocr defines the remote OCR collaborator and the retrying invoker
// that the pipeline calls it through.
package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/filing-pipeline/internal/models"
)

// Client converts document bytes into a structured OCR result.
type Client interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	Process(ctx context.Context, data []byte, displayName string) (*models.OCRResult, error)
}

// RemoteServiceError is returned by clients for any failed remote call.
// Temporary errors are retried; the rest fail the document immediately.
type RemoteServiceError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
	Temporary  bool
	Err        error
}

func (e *RemoteServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, msg)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// IsRetryable decides which errors the invoker retries. Cancellation and
// permanent remote errors are final; anything else is assumed transient.
// Deadline errors stay retryable because per-request timeouts surface as
// context.DeadlineExceeded.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var remote *RemoteServiceError
	if errors.As(err, &remote) {
		return remote.Temporary
	}
	return true
}
