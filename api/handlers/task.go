package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
)

type TaskHandler struct {
	tasks  queue.Queue
	logger logger.Logger
}

func NewTaskHandler(tasks queue.Queue, log logger.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: log}
}

// GetStatus returns the state of one document task.
func (h *TaskHandler) GetStatus(c *gin.Context) {
	if h.tasks == nil {
		handleError(c, h.logger, http.StatusServiceUnavailable, "Task queue is not configured", nil)
		return
	}
	taskID := c.Param("taskId")

	status, err := h.tasks.GetTaskStatus(c.Request.Context(), taskID)
	if errors.Is(err, queue.ErrTaskNotFound) {
		handleError(c, h.logger, http.StatusNotFound, "Task not found", err)
		return
	}
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
