package handler

import (
	"context"

	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/progress"
)

// RunQueue accepts runs and cancels them by id. The in-process task runner
// and the asynq queue both implement it.
type RunQueue interface {
	Enqueue(ctx context.Context, req appcore.RunRequest) (string, error)
	Cancel(runID string) error
}

type Handler struct {
	Runs      RunQueue
	Broker    *progress.Broker
	QueueMode string
}

func NewHandler(runs RunQueue, broker *progress.Broker, queueMode string) Handler {
	return Handler{Runs: runs, Broker: broker, QueueMode: queueMode}
}
