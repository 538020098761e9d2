package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/partition"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

type PipelineHandler struct {
	pipeline Pipeline
	tasks    queue.Queue
	logger   logger.Logger
}

type LedgerResponse struct {
	Ledger string     `json:"ledger"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Count  int        `json:"count"`
}

type MarkerResponse struct {
	DocumentID string                   `json:"documentId"`
	MarkerKey  string                   `json:"markerKey"`
	Exists     bool                     `json:"exists"`
	Marker     *models.ProcessingMarker `json:"marker,omitempty"`
}

type YearResponse struct {
	Stem string `json:"stem"`
	Year string `json:"year"`
	Rule string `json:"rule,omitempty"`
}

type RunRequest struct {
	Partitions []string `json:"partitions" binding:"required"`
}

type RunResponse struct {
	Partitions []string `json:"partitions"`
	Documents  int      `json:"documents"`
	Enqueued   int      `json:"enqueued"`
	Duplicates int      `json:"duplicates"`
	Broken     int      `json:"broken"`
	Errors     int      `json:"errors"`
}

func NewPipelineHandler(pipeline Pipeline, tasks queue.Queue, log logger.Logger) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, tasks: tasks, logger: log}
}

// GetLedger returns the rows of the success or failure ledger.
func (h *PipelineHandler) GetLedger(c *gin.Context) {
	name := c.Param("name")
	l, ok := h.pipeline.Ledger(name)
	if !ok {
		handleError(c, h.logger, http.StatusNotFound, "Unknown ledger", errors.New(name))
		return
	}

	rows, err := l.Rows(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to read ledger", err)
		return
	}
	if rows == nil {
		rows = [][]string{}
	}

	c.JSON(http.StatusOK, LedgerResponse{
		Ledger: l.ID(),
		Header: l.Header(),
		Rows:   rows,
		Count:  len(rows),
	})
}

// GetMarker reports whether a document has been processed.
func (h *PipelineHandler) GetMarker(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		handleError(c, h.logger, http.StatusBadRequest, "Query parameter key is required", nil)
		return
	}
	ref := models.SourceRef{Key: key, Archive: c.Query("archive")}
	markers := h.pipeline.Markers()

	resp := MarkerResponse{DocumentID: ref.ID(), MarkerKey: markers.Key(ref)}
	m, err := markers.Read(c.Request.Context(), ref)
	switch {
	case err == nil:
		resp.Exists = true
		resp.Marker = m
	case errors.Is(err, storage.ErrNotFound):
	default:
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to read marker", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// InferYear runs year inference on a file stem and an optional folder name.
func (h *PipelineHandler) InferYear(c *gin.Context) {
	stem := c.Query("stem")
	if stem == "" {
		handleError(c, h.logger, http.StatusBadRequest, "Query parameter stem is required", nil)
		return
	}
	year, rule := h.pipeline.Inferer().InferWithRule(stem, partition.LeadingYear(c.Query("folder")))
	c.JSON(http.StatusOK, YearResponse{Stem: stem, Year: year, Rule: rule})
}

// CreateRun discovers the documents of the requested partitions and queues
// one task per document.
func (h *PipelineHandler) CreateRun(c *gin.Context) {
	if h.tasks == nil {
		handleError(c, h.logger, http.StatusServiceUnavailable, "Task queue is not configured", nil)
		return
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid run request", err)
		return
	}

	ctx := c.Request.Context()
	d, err := h.pipeline.Discover(ctx, req.Partitions)
	if errors.Is(err, ingest.ErrNoPartitions) {
		handleError(c, h.logger, http.StatusBadRequest, "No partitions requested", err)
		return
	}
	if err != nil {
		handleError(c, h.logger, http.StatusBadGateway, "Discovery failed", err)
		return
	}

	resp := RunResponse{Partitions: d.Partitions, Documents: len(d.Candidates)}
	m := h.pipeline.Metrics()
	for _, cand := range d.Candidates {
		if cand.Err != nil {
			resp.Broken++
			continue
		}
		created, err := h.tasks.Enqueue(ctx, cand.Ref)
		m.RecordEnqueue(err)
		switch {
		case err != nil:
			resp.Errors++
			h.logger.Error("Failed to enqueue document",
				logger.String("document", cand.Ref.ID()),
				logger.Error(err),
			)
		case created:
			resp.Enqueued++
		default:
			resp.Duplicates++
		}
	}
	if resp.Partitions == nil {
		resp.Partitions = []string{}
	}

	h.logger.Info("Run queued",
		logger.Strings("partitions", d.Partitions),
		logger.Int("enqueued", resp.Enqueued),
		logger.Int("duplicates", resp.Duplicates),
		logger.Int("errors", resp.Errors),
	)
	c.JSON(http.StatusAccepted, resp)
}
