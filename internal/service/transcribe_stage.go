package service

import (
	"context"
	"path/filepath"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"
	"strings"

	"go.uber.org/zap"
)

// runTranscribeStage turns the narration audio of each shot that has no
// current subtitle into <save dir>/subtitles/<audio base>.srt. The
// transcription server handles one file at a time, so shots run serially.
func (s *Service) runTranscribeStage(ctx context.Context, r *runState) *stageTally {
	tally := newTally(types.StageSubtitle)
	pending := readyShots(r.sb, types.StageSubtitle)
	outputDir := filepath.Join(r.saveDir, "subtitles")
	for n, i := range pending {
		if ctx.Err() != nil {
			tally.fail(i, apperrors.Wrap(apperrors.CodeServiceTimeout, "运行已取消 Run canceled", ctx.Err()))
			continue
		}
		path, err := s.transcribeShot(ctx, r, &r.sb.Shots[i], outputDir)
		r.emit(types.StageSubtitle, n+1, len(pending), i, "", err)
		if err != nil {
			r.logger.Warn("字幕转录失败 Transcription failed", zap.Int("shot", i), zap.Error(err))
			tally.fail(i, err)
			continue
		}
		r.sb.Shots[i] = storyboard.Advance(r.sb.Shots[i], types.StageResult{
			Stage:  types.StageSubtitle,
			Status: types.StageDone,
			Shot:   types.Shot{SubtitlePath: path},
		})
		tally.ok()
	}
	return tally
}

func (s *Service) transcribeShot(ctx context.Context, r *runState, shot *types.Shot, outputDir string) (string, error) {
	if strings.TrimSpace(shot.Audio) == "" {
		return "", apperrors.Newf(apperrors.CodeValidation, "缺少配音文件 Missing audio", "shot %d", shot.ID)
	}
	audio := resolveAudio(r.sb, shot.Audio)
	if err := requireFile(audio); err != nil {
		return "", err
	}
	if s.Transcriber == nil {
		return "", errMissingCollaborator("transcriber")
	}

	expected := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))+".srt")
	if _, err := storyboard.BackupFile(expected, now()); err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeFileSystem, "文件备份失败 Backup failed", expected, err)
	}

	var path string
	err := withRetry(ctx, s.Settings.StageRetries, func() error {
		var err error
		path, err = s.Transcriber.Transcribe(ctx, audio, outputDir)
		return err
	})
	if err != nil {
		return "", err
	}
	if err = requireFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// resolveAudio accepts the audio path as written, then relative to the
// storyboard file.
func resolveAudio(sb *types.Storyboard, p string) string {
	if storyboard.FileExists(p) {
		return p
	}
	return storyboard.ResolvePath(sb, p)
}
