package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/service"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
)

// Executor runs one storyboard. *service.Service implements it.
type Executor interface {
	RunStoryboard(ctx context.Context, opts service.RunOptions) (*types.RunReport, error)
}

// TaskHandlers runs queued storyboards and forwards their events.
type TaskHandlers struct {
	exec   Executor
	events appcore.EventSink
}

func NewTaskHandlers(exec Executor, events appcore.EventSink) *TaskHandlers {
	return &TaskHandlers{exec: exec, events: events}
}

// HandleRunTask processes one storyboard run. Only transient failures are
// handed back to asynq for a retry; a storyboard that does not validate
// will not get better by waiting.
func (h *TaskHandlers) HandleRunTask(ctx context.Context, t *asynq.Task) error {
	var req appcore.RunRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if id, ok := asynq.GetTaskID(ctx); ok && req.ID == "" {
		req.ID = id
	}

	log.GetLogger().Info("[Queue] processing run",
		zap.String("run_id", req.ID),
		zap.String("storyboard", req.StoryboardPath))

	_, err := h.exec.RunStoryboard(ctx, service.RunOptionsFromRequest(req, h.events))
	if err != nil {
		if !apperrors.IsTransient(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.GetLogger().Info("[Queue] run completed", zap.String("run_id", req.ID))
	return nil
}

// RegisterHandlers registers all task handlers with the Asynq server mux
func (h *TaskHandlers) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeStoryboardRun, h.HandleRunTask)
}

// StartWorker runs the Asynq worker until the server is shut down.
func StartWorker(q *Queue, exec Executor, events appcore.EventSink) error {
	handlers := NewTaskHandlers(exec, events)

	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	log.GetLogger().Info("[Queue] starting worker",
		zap.String("redis_addr", q.config.RedisAddr),
		zap.Int("concurrency", q.config.Concurrency))

	return q.server.Run(mux)
}
