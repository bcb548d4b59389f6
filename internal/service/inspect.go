package service

import (
	"path/filepath"

	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/subtitle"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"

	"go.uber.org/zap"
)

// CheckResult is a dry run of a storyboard: what ingest would change and
// which stages each shot would go through. Nothing is written.
type CheckResult struct {
	Path   string                  `json:"path"`
	Ingest storyboard.IngestReport `json:"ingest"`
	Counts map[types.Stage]int     `json:"counts"`
	Plan   storyboard.RunPlan      `json:"plan"`
}

// CheckStoryboard loads path, applies ingest to an in-memory copy and plans
// it. A storyboard that does not validate returns the validation error.
func CheckStoryboard(path string) (*CheckResult, error) {
	if path == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "分镜路径为空 Storyboard path is required")
	}
	sb, err := storyboard.Load(path)
	if err != nil {
		return nil, err
	}
	ingest := storyboard.Ingest(sb, storyboard.FileExists)
	plan, err := storyboard.Plan(sb)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Path: sb.Path, Ingest: ingest, Counts: plan.Counts(), Plan: plan}, nil
}

// ImportResult describes a storyboard created from seed records.
type ImportResult struct {
	Path   string `json:"path"`
	Backup string `json:"backup,omitempty"`
	Shots  int    `json:"shots"`
}

// ImportStoryboard turns the audio export at seedPath into a storyboard at
// storyboardPath with every stage pending. An existing storyboard is backed
// up first.
func ImportStoryboard(seedPath, storyboardPath string) (*ImportResult, error) {
	if seedPath == "" || storyboardPath == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "种子路径和分镜路径不能为空 Seed and storyboard paths are required")
	}
	records, err := storyboard.LoadSeed(seedPath)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.Newf(apperrors.CodeValidation, "种子文件为空 Seed file has no records", "%s", seedPath)
	}
	sb := storyboard.ImportSeed(storyboardPath, records)
	if err = storyboard.Validate(sb); err != nil {
		return nil, err
	}
	backup, err := storyboard.Save(sb)
	if err != nil {
		return nil, err
	}
	log.GetLogger().Info("分镜已导入 Storyboard imported",
		zap.String("seed", seedPath),
		zap.String("path", storyboardPath),
		zap.Int("shots", len(sb.Shots)))
	return &ImportResult{Path: storyboardPath, Backup: backup, Shots: len(sb.Shots)}, nil
}

// MergeResult describes a merged subtitle track written to disk.
type MergeResult struct {
	Path    string                 `json:"path"`
	Backup  string                 `json:"backup,omitempty"`
	Cues    int                    `json:"cues"`
	Length  float64                `json:"length"`
	Skipped []subtitle.SkippedShot `json:"skipped"`
}

// MergeSubtitles writes the merged subtitle track of the storyboard at path
// to <save dir>/<json base>.srt, backing up any previous file.
func MergeSubtitles(path, saveDir string) (*MergeResult, error) {
	if path == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "分镜路径为空 Storyboard path is required")
	}
	sb, err := storyboard.Load(path)
	if err != nil {
		return nil, err
	}
	dir, err := resolveSaveDir(saveDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFileSystem, "解析保存目录失败 Resolve save dir failed", err)
	}

	merged := subtitle.MergeStoryboard(sb)
	if len(merged.Cues) == 0 {
		return nil, apperrors.New(apperrors.CodeFileNotFound, "没有可合并的字幕 No shot subtitles to merge")
	}
	out := filepath.Join(dir, artifactBase(sb.Path)+".srt")
	backup, err := storyboard.WriteWithBackup(out, []byte(merged.SRT()))
	if err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", out, err)
	}
	log.GetLogger().Info("字幕已合并 Subtitles merged",
		zap.String("path", out),
		zap.Int("cues", len(merged.Cues)),
		zap.Int("skipped", len(merged.Skipped)))

	skipped := merged.Skipped
	if skipped == nil {
		skipped = []subtitle.SkippedShot{}
	}
	return &MergeResult{
		Path:    out,
		Backup:  backup,
		Cues:    len(merged.Cues),
		Length:  merged.Length.Seconds(),
		Skipped: skipped,
	}, nil
}
