package types

import "time"

// Stage names a unit of work the pipeline can run for a shot or a storyboard.
type Stage string

const (
	StagePrompt    Stage = "prompt"
	StageFigure    Stage = "figure"
	StageVideo     Stage = "video"
	StageSubtitle  Stage = "subtitle"
	StageProofread Stage = "proofread"
	StageAssembly  Stage = "assembly"
)

// GenerationStages are the flag-driven stages in dependency order.
var GenerationStages = []Stage{StagePrompt, StageFigure, StageVideo}

type StageStatus uint8

const (
	StagePending StageStatus = iota
	StageDone
	StageFailed
)

func (s StageStatus) String() string {
	switch s {
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "pending"
	}
}

// StageResult is what a stage worker hands back for one shot. Shot carries
// the fields the stage produced; it is merged into the storyboard record by
// index, never written to the storyboard directly.
type StageResult struct {
	Stage  Stage
	Status StageStatus
	Shot   Shot
	Err    error
}

// BatchSummary counts per-shot outcomes of one stage run.
type BatchSummary struct {
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

func (b *BatchSummary) Add(other BatchSummary) {
	b.Succeeded += other.Succeeded
	b.Failed += other.Failed
	b.Skipped += other.Skipped
}

func (b BatchSummary) Total() int {
	return b.Succeeded + b.Failed + b.Skipped
}

// ShotFailure explains why one shot did not complete a stage.
type ShotFailure struct {
	Id      uint64 `json:"-" yaml:"-" gorm:"primaryKey;autoIncrement"`
	RunId   string `json:"-" yaml:"-" gorm:"index"`
	Shot    int    `json:"shot" yaml:"shot"`
	Stage   Stage  `json:"stage" yaml:"stage"`
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
	Skipped bool   `json:"skipped" yaml:"skipped"`
}

// StageReport is the outcome of one stage in a run.
type StageReport struct {
	Stage   Stage        `json:"stage" yaml:"stage"`
	Summary BatchSummary `json:"summary" yaml:"summary"`
}

// RunReport is returned by a full storyboard run.
type RunReport struct {
	RunID          string            `json:"run_id" yaml:"run_id"`
	StoryboardPath string            `json:"storyboard_path" yaml:"storyboard_path"`
	StartedAt      time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time         `json:"finished_at" yaml:"finished_at"`
	Stages         []StageReport     `json:"stages" yaml:"stages"`
	Failures       []ShotFailure     `json:"failures,omitempty" yaml:"failures,omitempty"`
	Artifacts      map[string]string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	InstanceError  string            `json:"instance_error,omitempty" yaml:"instance_error,omitempty"`
}

// Summary returns the summary recorded for stage, zero when the stage did
// not run.
func (r *RunReport) Summary(stage Stage) BatchSummary {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Summary
		}
	}
	return BatchSummary{}
}

func (r *RunReport) AddStage(stage Stage, summary BatchSummary, failures []ShotFailure) {
	r.Stages = append(r.Stages, StageReport{Stage: stage, Summary: summary})
	r.Failures = append(r.Failures, failures...)
}

// Total sums every stage summary.
func (r *RunReport) Total() BatchSummary {
	var total BatchSummary
	for _, s := range r.Stages {
		total.Add(s.Summary)
	}
	return total
}
