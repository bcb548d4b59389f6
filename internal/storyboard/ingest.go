package storyboard

import (
	"os"
	"storyboard-ai/internal/types"
	"strings"
)

// IngestReport counts pending stages after Ingest.
type IngestReport struct {
	Shots           int `json:"shots"`
	Changed         int `json:"changed"`
	PromptPending   int `json:"prompt_pending"`
	FigurePending   int `json:"figure_pending"`
	VideoPending    int `json:"video_pending"`
	SubtitlePending int `json:"subtitle_pending"`
}

// FileExists is the default existence check used by Ingest.
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Ingest normalises the flags of every shot against what is actually on
// disk: missing flags default to pending, missing prompts or artifacts set
// their stage pending, and pending stages cascade downstream.
func Ingest(sb *types.Storyboard, exists func(string) bool) IngestReport {
	if exists == nil {
		exists = FileExists
	}
	report := IngestReport{Shots: len(sb.Shots)}
	for i := range sb.Shots {
		shot := &sb.Shots[i]
		before := [4]bool{shot.PromptPending, shot.FigurePending, shot.VideoPending, shot.SubtitlePending}

		if !shot.Has(types.KeyPromptFlag) {
			shot.PromptPending = true
		}
		if !shot.Has(types.KeyFigureFlag) {
			shot.FigurePending = true
		}
		if !shot.Has(types.KeyVideoFlag) {
			shot.VideoPending = true
		}
		if !shot.Has(types.KeySubtitleFlag) {
			shot.SubtitlePending = true
		}

		if strings.TrimSpace(shot.PromptFigure) == "" || len(shot.PromptVideo.Steps()) == 0 {
			shot.PromptPending = true
		}
		if shot.Figure == nil || !exists(ResolvePath(sb, shot.Figure.Filepath)) {
			shot.FigurePending = true
		}
		if shot.Video == nil || !exists(ResolvePath(sb, shot.Video.Filepath)) {
			shot.VideoPending = true
		}
		if shot.SubtitlePath != "" && !exists(ResolvePath(sb, shot.SubtitlePath)) {
			shot.SubtitlePending = true
		}

		if shot.PromptPending {
			shot.FigurePending = true
		}
		if shot.FigurePending {
			shot.VideoPending = true
		}

		after := [4]bool{shot.PromptPending, shot.FigurePending, shot.VideoPending, shot.SubtitlePending}
		if before != after {
			report.Changed++
		}
		if shot.PromptPending {
			report.PromptPending++
		}
		if shot.FigurePending {
			report.FigurePending++
		}
		if shot.VideoPending {
			report.VideoPending++
		}
		if shot.SubtitlePending || shot.SubtitlePath == "" {
			report.SubtitlePending++
		}
	}
	return report
}
