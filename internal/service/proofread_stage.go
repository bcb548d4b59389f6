package service

import (
	"context"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/subtitle"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"

	"go.uber.org/zap"
)

const kindRevisionRejected = "RevisionRejected"

// runProofreadStage corrects each shot subtitle against its narration text.
// A revision is written back only when it passes the cue checks.
func (s *Service) runProofreadStage(ctx context.Context, r *runState) *stageTally {
	tally := newTally(types.StageProofread)
	var shots []int
	for i, shot := range r.sb.Shots {
		if shot.SubtitlePath != "" && !shot.SubtitlePending {
			shots = append(shots, i)
		}
	}
	if len(shots) == 0 {
		return tally
	}
	if s.ChatCompleter == nil {
		for _, i := range shots {
			tally.fail(i, errMissingCollaborator("chat completer"))
		}
		return tally
	}

	proofreader := &subtitle.Proofreader{
		Chat:          s.ChatCompleter,
		MinSimilarity: s.Settings.MinSimilarity,
		MaxAttempts:   s.Settings.StageRetries + 1,
	}
	for n, i := range shots {
		shot := &r.sb.Shots[i]
		path := storyboard.ResolvePath(r.sb, shot.SubtitlePath)
		result, err := s.proofreadShot(ctx, proofreader, shot, path)
		r.emit(types.StageProofread, n+1, len(shots), i, result.Reason, err)
		switch {
		case err != nil:
			r.logger.Warn("字幕校对失败 Proofread failed", zap.Int("shot", i), zap.Error(err))
			tally.fail(i, err)
		case !result.Accepted:
			r.logger.Info("字幕校对结果未采用，保留原字幕 Proofread revision rejected",
				zap.Int("shot", i), zap.String("reason", result.Reason))
			tally.summary.Skipped++
			tally.failures = append(tally.failures, types.ShotFailure{
				Shot: i, Stage: types.StageProofread, Kind: kindRevisionRejected, Message: result.Reason, Skipped: true,
			})
		default:
			tally.ok()
		}
	}
	return tally
}

func (s *Service) proofreadShot(ctx context.Context, p *subtitle.Proofreader, shot *types.Shot, path string) (subtitle.ProofreadResult, error) {
	cues, err := subtitle.ParseFile(path)
	if err != nil {
		return subtitle.ProofreadResult{}, apperrors.WrapWithDetail(apperrors.CodeFileNotFound, "字幕文件不可读 Subtitle unreadable", path, err)
	}
	result, err := p.Proofread(ctx, shot.Text, cues)
	if err != nil || !result.Accepted {
		return result, err
	}
	if _, err = storyboard.WriteWithBackup(path, []byte(subtitle.Format(result.Cues))); err != nil {
		return result, apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", path, err)
	}
	return result, nil
}
