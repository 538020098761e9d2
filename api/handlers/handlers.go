package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/filing-pipeline/internal/ledger"
	"github.com/feichai0017/filing-pipeline/internal/marker"
	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/internal/partition"
	"github.com/feichai0017/filing-pipeline/internal/source"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
)

// Pipeline is the read side of the ingest service the API exposes.
type Pipeline interface {
	Ledger(name string) (*ledger.Ledger, bool)
	Markers() *marker.Store
	Inferer() *partition.Inferer
	InputRoot() string
	Metrics() *metrics.Metrics
	Discover(ctx context.Context, tokens []string) (*source.Discovery, error)
}

type Handlers struct {
	Pipeline *PipelineHandler
	Task     *TaskHandler
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

func NewHandlers(pipeline Pipeline, tasks queue.Queue, log logger.Logger) *Handlers {
	return &Handlers{
		Pipeline: NewPipelineHandler(pipeline, tasks, log),
		Task:     NewTaskHandler(tasks, log),
	}
}

func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{logger.String("path", c.Request.URL.Path)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= 500 {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
