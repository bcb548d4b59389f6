package appcore

import (
	"context"
	"storyboard-ai/internal/types"
	"time"
)

// RunRequest asks for one pipeline run over a storyboard file.
type RunRequest struct {
	ID             string            `json:"id"`
	StoryboardPath string            `json:"storyboard_path"`
	SaveDir        string            `json:"save_dir,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	ManageInstance bool              `json:"manage_instance"`
	Transcribe     bool              `json:"transcribe"`
	Proofread      bool              `json:"proofread"`
	Assemble       bool              `json:"assemble"`
	Publish        bool              `json:"publish"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type RunStage uint8

const (
	RunStageQueued RunStage = iota + 1
	RunStagePreparing
	RunStageGenerating
	RunStageTranscribing
	RunStageProofreading
	RunStageAssembling
	RunStageFinalizing
	RunStageSucceeded
	RunStageFailed
	RunStageCanceled
)

func (s RunStage) String() string {
	switch s {
	case RunStageQueued:
		return "queued"
	case RunStagePreparing:
		return "preparing"
	case RunStageGenerating:
		return "generating"
	case RunStageTranscribing:
		return "transcribing"
	case RunStageProofreading:
		return "proofreading"
	case RunStageAssembling:
		return "assembling"
	case RunStageFinalizing:
		return "finalizing"
	case RunStageSucceeded:
		return "succeeded"
	case RunStageFailed:
		return "failed"
	case RunStageCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (s RunStage) IsTerminal() bool {
	return s == RunStageSucceeded || s == RunStageFailed || s == RunStageCanceled
}

func (s RunStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StageFor maps a pipeline stage to the run stage reported to clients.
func StageFor(stage types.Stage) RunStage {
	switch stage {
	case types.StagePrompt, types.StageFigure, types.StageVideo:
		return RunStageGenerating
	case types.StageSubtitle:
		return RunStageTranscribing
	case types.StageProofread:
		return RunStageProofreading
	case types.StageAssembly:
		return RunStageAssembling
	default:
		return RunStagePreparing
	}
}

// RunProgress counts processed shots within one pipeline stage.
type RunProgress struct {
	Stage     types.Stage `json:"stage"`
	Current   int         `json:"current"`
	Total     int         `json:"total"`
	Percent   float64     `json:"percent"`
	Message   string      `json:"message,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func NewRunProgress(stage types.Stage, current, total int, message string) *RunProgress {
	p := &RunProgress{Stage: stage, Current: current, Total: total, Message: message, UpdatedAt: time.Now()}
	if total > 0 {
		p.Percent = float64(current) * 100 / float64(total)
	}
	return p
}

type RunEvent struct {
	RunID      string       `json:"run_id"`
	Stage      RunStage     `json:"stage"`
	Progress   *RunProgress `json:"progress,omitempty"`
	Shot       *int         `json:"shot,omitempty"`
	Message    string       `json:"message,omitempty"`
	Err        string       `json:"error,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

type RunResult struct {
	RunID      string
	Stage      RunStage
	Report     *types.RunReport
	OutputPath string
	Artifacts  map[string]string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// EventSink receives run events. It may be called from several goroutines
// and must not block.
type EventSink func(RunEvent)

// Emit stamps the event and hands it to sink; a nil sink drops it.
func (sink EventSink) Emit(ev RunEvent) {
	if sink == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	sink(ev)
}

// Tee returns a sink that forwards to every non-nil sink in order.
func Tee(sinks ...EventSink) EventSink {
	return func(ev RunEvent) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}

type RunHandle interface {
	ID() string
	Events() <-chan RunEvent
	Result() <-chan RunResult
	Cancel() error
}

type Runner interface {
	Submit(ctx context.Context, req RunRequest) (RunHandle, error)
}
