package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storyboard-ai/config"
	"storyboard-ai/internal/handler"
	"storyboard-ai/internal/progress"
	"storyboard-ai/internal/queue"
	"storyboard-ai/internal/router"
	"storyboard-ai/internal/service"
	"storyboard-ai/internal/taskrunner"
	"storyboard-ai/log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// backend is the run queue selected by queue.mode plus its shutdown.
type backend struct {
	runs  handler.RunQueue
	close func()
}

func newBackend(svc *service.Service, broker *progress.Broker) (backend, error) {
	events := broker.Sink()
	switch config.Conf.Queue.Mode {
	case config.QueueModeRedis:
		q := queue.NewQueue(queue.DefaultConfig(), events)
		go func() {
			if err := queue.StartWorker(q, svc, events); err != nil {
				log.GetLogger().Error("[Queue] worker stopped", zap.Error(err))
			}
		}()
		return backend{runs: q, close: func() {
			if err := q.Close(); err != nil {
				log.GetLogger().Warn("[Queue] close failed", zap.Error(err))
			}
		}}, nil
	case config.QueueModeMemory, "":
		r := taskrunner.New(svc, events, taskrunner.Config{
			QueueSize:   config.Conf.Queue.QueueSize,
			Concurrency: config.Conf.Queue.Concurrency,
		})
		return backend{runs: r, close: r.Close}, nil
	default:
		return backend{}, fmt.Errorf("unknown queue mode %q", config.Conf.Queue.Mode)
	}
}

// StartBackend serves the HTTP API until ctx is done.
func StartBackend(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	broker := progress.NewBroker(0, 0)
	be, err := newBackend(service.NewService(), broker)
	if err != nil {
		return err
	}
	defer be.close()

	router.SetupRouter(engine, handler.NewHandler(be.runs, broker, config.Conf.Queue.Mode))

	addr := fmt.Sprintf("%s:%d", config.Conf.Server.Host, config.Conf.Server.Port)
	srv := &http.Server{Addr: addr, Handler: engine}
	errCh := make(chan error, 1)
	go func() {
		log.GetLogger().Info("服务启动 Server listening", zap.String("addr", addr), zap.String("queue_mode", config.Conf.Queue.Mode))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.GetLogger().Info("服务关闭中 Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
