package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/filing-pipeline/api/handlers"
	"github.com/feichai0017/filing-pipeline/api/middleware"
	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

// SetupRoutes registers every route on r. m may be nil.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, m *metrics.Metrics, log logger.Logger) {
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ledgers/:name", h.Pipeline.GetLedger)
		v1.GET("/markers", h.Pipeline.GetMarker)
		v1.GET("/years", h.Pipeline.InferYear)
		v1.POST("/runs", h.Pipeline.CreateRun)
		v1.GET("/tasks/:taskId", h.Task.GetStatus)
	}
}
