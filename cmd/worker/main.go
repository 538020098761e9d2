package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
	"github.com/feichai0017/filing-pipeline/pkg/worker"
)

func main() {
	c, err := cfg.LoadPipelineConfig(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithConfig(c.Logging),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := ingest.GetService(ctx, c, log)
	if err != nil {
		log.Error("Failed to create ingest service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Close()

	statuses := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr: c.Queue.RedisAddr,
		RedisDB:   c.Queue.RedisDB,
		Queue:     c.Queue.Queue,
	})
	defer statuses.Close()

	documentWorker := worker.NewDocumentWorker(&worker.Config{
		RedisAddr:   c.Queue.RedisAddr,
		RedisDB:     c.Queue.RedisDB,
		Concurrency: c.Queue.Concurrency,
		Queues:      map[string]int{c.Queue.Queue: 1},
	}, svc, statuses, log)

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started",
		logger.String("queue", c.Queue.Queue),
		logger.Int("concurrency", c.Queue.Concurrency),
		logger.String("ocr_provider", c.OCR.Provider),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	_ = documentWorker.Stop()
	log.Info("Worker stopped")
}
