// Package queue provides background run processing using Asynq.
// Runs survive a server restart because the queue lives in Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"storyboard-ai/config"
	"storyboard-ai/internal/appcore"
	"storyboard-ai/log"
)

// Task type names
const (
	TypeStoryboardRun = "storyboard:run"
)

const (
	queueDefault = "default"
	runTimeout   = 6 * time.Hour
	runMaxRetry  = 2
)

// QueueConfig holds Redis configuration for Asynq
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Queue manages run enqueueing and processing
type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	inspector *asynq.Inspector
	config    QueueConfig
	events    appcore.EventSink
}

// DefaultConfig returns the queue configuration from config.Conf.
func DefaultConfig() QueueConfig {
	q := config.Conf.Queue
	cfg := QueueConfig{
		RedisAddr:     q.RedisAddr,
		RedisPassword: q.RedisPassword,
		RedisDB:       q.RedisDB,
		Concurrency:   q.Concurrency,
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return cfg
}

// retryDelay backs off 30s, 60s, 120s, ...
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return time.Duration(30<<uint(n)) * time.Second
}

// NewQueue creates a new Queue instance. events receives the queued event
// of every enqueued run; the worker reports the rest.
func NewQueue(cfg QueueConfig, events appcore.EventSink) *Queue {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:    cfg.Concurrency,
			Queues:         map[string]int{queueDefault: 1},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.GetLogger().Error("[Queue] run failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	return &Queue{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		inspector: asynq.NewInspector(redisOpt),
		config:    cfg,
		events:    events,
	}
}

// NewRunTask builds the asynq task for req. The run id doubles as the task
// id so a run can be found and canceled by it.
func NewRunTask(req appcore.RunRequest) (*asynq.Task, error) {
	if req.StoryboardPath == "" {
		return nil, errors.New("storyboard path is required")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeStoryboardRun, data,
		asynq.TaskID(req.ID),
		asynq.MaxRetry(runMaxRetry),
		asynq.Timeout(runTimeout),
		asynq.Queue(queueDefault),
	), nil
}

// Enqueue adds a storyboard run to the queue and returns its run id.
func (q *Queue) Enqueue(ctx context.Context, req appcore.RunRequest) (string, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	task, err := NewRunTask(req)
	if err != nil {
		return "", err
	}

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue run: %w", err)
	}

	q.events.Emit(appcore.RunEvent{RunID: req.ID, Stage: appcore.RunStageQueued, Message: info.Queue})
	log.GetLogger().Info("[Queue] run enqueued",
		zap.String("run_id", req.ID),
		zap.String("storyboard", req.StoryboardPath),
		zap.String("queue", info.Queue))
	return req.ID, nil
}

// Cancel removes a pending run or asks the worker to stop an active one.
func (q *Queue) Cancel(runID string) error {
	err := q.inspector.DeleteTask(queueDefault, runID)
	if err == nil {
		return nil
	}
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return err
	}
	return q.inspector.CancelProcessing(runID)
}

// Close gracefully shuts down the queue
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	q.server.Shutdown()
	return q.inspector.Close()
}
