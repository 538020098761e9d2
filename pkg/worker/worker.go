package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr   string
	RedisDB     int
	Concurrency int
	Queues      map[string]int
}

type BaseWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

// Stop waits for in-flight tasks and shuts the server down.
func (w *BaseWorker) Stop() error {
	w.server.Shutdown()
	return nil
}
