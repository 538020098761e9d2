package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/source"
	"github.com/feichai0017/filing-pipeline/internal/utils/validator"
)

// ErrNoPartitions is returned by Run when no partition token was given.
var ErrNoPartitions = errors.New("no partitions to process")

// StageError records the state machine step a document failed in.
type StageError struct {
	Stage models.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// errorKind names the class of err for the failure ledger.
func errorKind(err error) string {
	var (
		remote  *ocr.RemoteServiceError
		invalid *validator.ValidationError
		archive *source.ArchiveError
		stage   *StageError
	)
	switch {
	case errors.As(err, &remote):
		return "RemoteServiceError"
	case errors.As(err, &invalid):
		return "ValidationError"
	case errors.As(err, &archive):
		return "ArchiveError"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.As(err, &stage):
		switch stage.Stage {
		case models.StageMarkerCheck, models.StageFetching, models.StageUploading, models.StageMarkerWriting:
			return "StorageError"
		}
	}
	return "Error"
}

// failureMessage renders err as "<Kind>: <message>" without the stage prefix.
func failureMessage(err error) string {
	cause := err
	var stage *StageError
	if errors.As(err, &stage) {
		cause = stage.Err
	}
	return errorKind(err) + ": " + cause.Error()
}
