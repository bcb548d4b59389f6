package service

import (
	"context"
	"path/filepath"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/util"
	"strings"

	"go.uber.org/zap"
)

// runFigureStage renders the still image of every ready shot, one at a
// time. The generated file is copied into the save dir under a timestamp
// name.
func (s *Service) runFigureStage(ctx context.Context, r *runState) *stageTally {
	tally := newTally(types.StageFigure)
	pending := readyShots(r.sb, types.StageFigure)
	for n, i := range pending {
		if ctx.Err() != nil {
			tally.fail(i, apperrors.Wrap(apperrors.CodeServiceTimeout, "运行已取消 Run canceled", ctx.Err()))
			continue
		}
		record, err := s.generateFigure(ctx, r, &r.sb.Shots[i])
		r.emit(types.StageFigure, n+1, len(pending), i, "", err)
		if err != nil {
			r.logger.Warn("图片生成失败 Figure generation failed", zap.Int("shot", i), zap.Error(err))
			tally.fail(i, err)
			continue
		}
		r.sb.Shots[i] = storyboard.Advance(r.sb.Shots[i], types.StageResult{
			Stage:  types.StageFigure,
			Status: types.StageDone,
			Shot:   types.Shot{Figure: record},
		})
		tally.ok()
	}
	return tally
}

func (s *Service) generateFigure(ctx context.Context, r *runState, shot *types.Shot) (*types.FigureRecord, error) {
	prompt := strings.TrimSpace(shot.PromptFigure)
	if prompt == "" {
		return nil, apperrors.Newf(apperrors.CodeValidation, "缺少图片提示词 Missing figure prompt", "shot %d", shot.ID)
	}
	if s.FigureGenerator == nil {
		return nil, errMissingCollaborator("figure generator")
	}

	var generated string
	err := withRetry(ctx, s.Settings.StageRetries, func() error {
		var err error
		generated, err = s.FigureGenerator.GenerateFigure(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err = requireFile(generated); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(generated))
	if ext == "" {
		ext = ".png"
	}
	dst := timestampedPath(r.saveDir, "", ext)
	if err = copyInto(generated, dst); err != nil {
		return nil, err
	}
	r.logger.Info("图片已保存 Figure saved", zap.Int("shot", shot.ID), zap.String("path", dst))

	return &types.FigureRecord{
		Filename:         filepath.Base(dst),
		Filepath:         dst,
		OriginalFilename: filepath.Base(generated),
		Prompt:           prompt,
		Timestamp:        util.Timestamp(now()),
	}, nil
}

func readyShots(sb *types.Storyboard, stage types.Stage) []int {
	var out []int
	for i := range sb.Shots {
		if storyboard.Ready(&sb.Shots[i], stage) {
			out = append(out, i)
		}
	}
	return out
}
