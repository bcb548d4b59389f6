package dto

import (
	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/types"
)

// StartRunReq 提交分镜运行
type StartRunReq struct {
	StoryboardPath string            `json:"storyboard_path" binding:"required"`
	SaveDir        string            `json:"save_dir"`
	Summary        string            `json:"summary"`
	ManageInstance bool              `json:"manage_instance"`
	Transcribe     bool              `json:"transcribe"`
	Proofread      bool              `json:"proofread"`
	Assemble       bool              `json:"assemble"`
	Publish        bool              `json:"publish"`
	Metadata       map[string]string `json:"metadata"`
}

func (r StartRunReq) RunRequest() appcore.RunRequest {
	return appcore.RunRequest{
		StoryboardPath: r.StoryboardPath,
		SaveDir:        r.SaveDir,
		Summary:        r.Summary,
		ManageInstance: r.ManageInstance,
		Transcribe:     r.Transcribe,
		Proofread:      r.Proofread,
		Assemble:       r.Assemble,
		Publish:        r.Publish,
		Metadata:       r.Metadata,
	}
}

type StartRunResData struct {
	RunId string `json:"run_id"`
}

// RunStatusResData combines the stored record with the live event stream.
// Either part may be missing: the record when history is disabled, the
// event when the process restarted since the run.
type RunStatusResData struct {
	RunId     string            `json:"run_id"`
	Record    *types.RunRecord  `json:"record,omitempty"`
	LastEvent *appcore.RunEvent `json:"last_event,omitempty"`
}

type GetRunHistoryReq struct {
	Limit int `form:"limit"`
}

// StoryboardReq names a storyboard file for check and subtitle merge.
type StoryboardReq struct {
	StoryboardPath string `json:"storyboard_path" binding:"required"`
	SaveDir        string `json:"save_dir"`
}

type HealthResData struct {
	Status    string `json:"status"`
	QueueMode string `json:"queue_mode"`
	HistoryDB bool   `json:"history_db"`
}

// ImportSeedReq creates a storyboard from an audio export.
type ImportSeedReq struct {
	SeedPath       string `json:"seed_path" binding:"required"`
	StoryboardPath string `json:"storyboard_path" binding:"required"`
}
