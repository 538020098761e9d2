package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/filing-pipeline/api/handlers"
	"github.com/feichai0017/filing-pipeline/api/routes"
	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
)

func main() {
	c, err := cfg.LoadPipelineConfig(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithConfig(c.Logging),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	svc, err := ingest.GetService(context.Background(), c, log)
	if err != nil {
		log.Fatal("Failed to get ingest service", logger.Error(err))
	}
	defer svc.Close()

	tasks := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr: c.Queue.RedisAddr,
		RedisDB:   c.Queue.RedisDB,
		Queue:     c.Queue.Queue,
	})
	defer tasks.Close()

	h := handlers.NewHandlers(svc, tasks, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, svc.Metrics(), log)

	srv := &http.Server{
		Addr:    c.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", c.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
