package taskrunner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/service"
	"storyboard-ai/internal/storage"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
)

const (
	defaultQueueSize   = 128
	defaultConcurrency = 1
	handleEventBuffer  = 256
)

var (
	ErrRunnerStopped  = errors.New("task runner stopped")
	ErrQueueFull      = errors.New("task queue is full")
	ErrDuplicateRun   = errors.New("storyboard already has a queued or running run")
	ErrRunNotFound    = errors.New("run not found")
	ErrStoryboardPath = errors.New("storyboard path is required")
)

// Executor runs one storyboard. *service.Service implements it.
type Executor interface {
	RunStoryboard(ctx context.Context, opts service.RunOptions) (*types.RunReport, error)
}

// Config controls in-process task runner behavior.
type Config struct {
	QueueSize   int
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		QueueSize:   defaultQueueSize,
		Concurrency: defaultConcurrency,
	}
}

type handle struct {
	req    appcore.RunRequest
	key    string
	events chan appcore.RunEvent
	result chan appcore.RunResult

	ctx    context.Context
	cancel context.CancelFunc
}

func (h *handle) ID() string                       { return h.req.ID }
func (h *handle) Events() <-chan appcore.RunEvent  { return h.events }
func (h *handle) Result() <-chan appcore.RunResult { return h.result }
func (h *handle) Cancel() error                    { h.cancel(); return nil }
func (h *handle) emit(ev appcore.RunEvent)         { sendEvent(h.events, ev) }
func (h *handle) canceled() bool                   { return h.ctx.Err() != nil }
func (h *handle) sink(extra appcore.EventSink) appcore.EventSink {
	return appcore.Tee(h.emit, extra)
}

func sendEvent(ch chan appcore.RunEvent, ev appcore.RunEvent) {
	select {
	case ch <- ev:
	default:
	}
}

// Runner executes queued storyboard runs with in-memory workers. It
// implements appcore.Runner.
type Runner struct {
	exec   Executor
	config Config
	events appcore.EventSink

	queue  chan *handle
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*handle // by run id
	paths  map[string]string  // storyboard path -> run id

	workerWg sync.WaitGroup
	closed   atomic.Bool
}

// New creates and starts a task runner. events, when set, receives every
// event of every run in addition to the per-run handle channel.
func New(exec Executor, events appcore.EventSink, cfg Config) *Runner {
	if exec == nil {
		exec = service.NewService()
	}

	cfg = normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	runner := &Runner{
		exec:   exec,
		config: cfg,
		events: events,
		queue:  make(chan *handle, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]*handle),
		paths:  make(map[string]string),
	}

	for i := 0; i < cfg.Concurrency; i++ {
		runner.workerWg.Add(1)
		go runner.worker(i + 1)
	}

	return runner
}

func normalizeConfig(cfg Config) Config {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return cfg
}

func pathKey(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Submit queues req. A storyboard that already has a queued or running run
// is rejected with ErrDuplicateRun.
func (r *Runner) Submit(ctx context.Context, req appcore.RunRequest) (appcore.RunHandle, error) {
	if req.StoryboardPath == "" {
		return nil, ErrStoryboardPath
	}
	if r.closed.Load() {
		return nil, ErrRunnerStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	runCtx, cancel := context.WithCancel(r.ctx)
	h := &handle{
		req:    req,
		key:    pathKey(req.StoryboardPath),
		events: make(chan appcore.RunEvent, handleEventBuffer),
		result: make(chan appcore.RunResult, 1),
		ctx:    runCtx,
		cancel: cancel,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.active[req.ID]; taken {
		cancel()
		return nil, ErrDuplicateRun
	}
	if other, ok := r.paths[h.key]; ok {
		cancel()
		log.GetLogger().Warn("[TaskRunner] duplicate run rejected",
			zap.String("storyboard", req.StoryboardPath), zap.String("active_run", other))
		return nil, ErrDuplicateRun
	}
	if r.ctx.Err() != nil {
		cancel()
		return nil, ErrRunnerStopped
	}
	// pushes only happen under mu, so a free slot stays free until ours
	if len(r.queue) >= cap(r.queue) {
		cancel()
		return nil, ErrQueueFull
	}

	r.active[req.ID] = h
	r.paths[h.key] = req.ID
	if storage.Ready() {
		if err := storage.SaveRun(&types.RunRecord{
			RunId:          req.ID,
			StoryboardPath: req.StoryboardPath,
			SaveDir:        req.SaveDir,
			Status:         types.RunStatusQueued,
		}); err != nil {
			log.GetLogger().Warn("[TaskRunner] save queued run failed", zap.String("run_id", req.ID), zap.Error(err))
		}
	}
	h.sink(r.events).Emit(appcore.RunEvent{RunID: req.ID, Stage: appcore.RunStageQueued})
	r.queue <- h

	log.GetLogger().Info("[TaskRunner] run submitted",
		zap.String("run_id", req.ID),
		zap.String("storyboard", req.StoryboardPath))
	return h, nil
}

// Enqueue submits req and returns only its run id. Progress is followed
// through the events sink given to New.
func (r *Runner) Enqueue(ctx context.Context, req appcore.RunRequest) (string, error) {
	h, err := r.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	return h.ID(), nil
}

// Lookup returns the handle of a queued or running run.
func (r *Runner) Lookup(runID string) (appcore.RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[runID]
	return h, ok
}

// Cancel stops a queued or running run.
func (r *Runner) Cancel(runID string) error {
	h, ok := r.Lookup(runID)
	if !ok {
		return ErrRunNotFound
	}
	return h.Cancel()
}

func (r *Runner) worker(workerID int) {
	defer r.workerWg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		select {
		case <-r.ctx.Done():
			return
		case h := <-r.queue:
			r.process(workerID, h)
		}
	}
}

func (r *Runner) process(workerID int, h *handle) {
	defer r.release(h)

	res := appcore.RunResult{RunID: h.req.ID, StartedAt: time.Now()}
	if h.canceled() {
		res.Stage = appcore.RunStageCanceled
		res.Err = context.Canceled
		res.FinishedAt = time.Now()
		h.sink(r.events).Emit(appcore.RunEvent{RunID: h.req.ID, Stage: appcore.RunStageCanceled, Err: res.Err.Error()})
		h.result <- res
		return
	}

	report, err := r.exec.RunStoryboard(h.ctx, service.RunOptionsFromRequest(h.req, h.sink(r.events)))
	res.Report = report
	res.FinishedAt = time.Now()
	res.Err = err
	switch {
	case err == nil:
		res.Stage = appcore.RunStageSucceeded
	case h.canceled():
		res.Stage = appcore.RunStageCanceled
	default:
		res.Stage = appcore.RunStageFailed
	}
	if report != nil {
		res.Artifacts = report.Artifacts
		res.OutputPath = report.Artifacts[service.ArtifactFinal]
	}
	h.result <- res

	if err != nil {
		log.GetLogger().Error("[TaskRunner] run failed",
			zap.Int("worker_id", workerID),
			zap.String("run_id", h.req.ID),
			zap.Error(err))
		return
	}
	log.GetLogger().Info("[TaskRunner] run completed",
		zap.Int("worker_id", workerID),
		zap.String("run_id", h.req.ID))
}

func (r *Runner) release(h *handle) {
	r.mu.Lock()
	delete(r.active, h.req.ID)
	if r.paths[h.key] == h.req.ID {
		delete(r.paths, h.key)
	}
	r.mu.Unlock()
	h.cancel()
	close(h.events)
}

// Close stops workers and rejects new runs.
func (r *Runner) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}

	r.cancel()
	r.workerWg.Wait()
}

// Pending returns the number of queued runs waiting for workers.
func (r *Runner) Pending() int {
	return len(r.queue)
}
