package service

import (
	"context"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runPromptStage generates prompts for every shot whose prompt is pending.
// Calls run on a bounded pool; results land in a slot per shot and are
// merged back in storyboard order once all workers are done.
func (s *Service) runPromptStage(ctx context.Context, r *runState) *stageTally {
	tally := newTally(types.StagePrompt)
	pending := readyShots(r.sb, types.StagePrompt)
	if len(pending) == 0 {
		return tally
	}
	if s.PromptGenerator == nil {
		for _, i := range pending {
			tally.fail(i, errMissingCollaborator("prompt generator"))
		}
		return tally
	}

	workers := s.Settings.PromptWorkers
	if workers <= 0 {
		workers = 1
	}
	r.logger.Info("开始生成提示词 Prompt stage started", zap.Int("shots", len(pending)), zap.Int("workers", workers))

	results := make([]types.StageResult, len(r.sb.Shots))
	var done atomic.Int32
	var g errgroup.Group
	g.SetLimit(workers)
	for _, i := range pending {
		shot := r.sb.Shots[i].Clone()
		g.Go(func() error {
			var produced types.Shot
			err := withRetry(ctx, s.Settings.StageRetries, func() error {
				var err error
				produced, err = s.PromptGenerator.GeneratePrompt(ctx, r.summary, shot)
				if err == nil {
					err = checkGeneratedPrompt(produced)
				}
				return err
			})
			results[i] = types.StageResult{Stage: types.StagePrompt, Status: types.StageDone, Shot: produced}
			if err != nil {
				results[i] = types.StageResult{Stage: types.StagePrompt, Status: types.StageFailed, Err: err}
			}
			r.emit(types.StagePrompt, int(done.Add(1)), len(pending), i, "", err)
			return nil
		})
	}
	_ = g.Wait()

	for _, i := range pending {
		res := results[i]
		if res.Status != types.StageDone {
			r.logger.Warn("提示词生成失败 Prompt generation failed", zap.Int("shot", i), zap.Error(res.Err))
			tally.fail(i, res.Err)
			continue
		}
		r.sb.Shots[i] = storyboard.Advance(r.sb.Shots[i], res)
		tally.ok()
	}
	return tally
}

func checkGeneratedPrompt(shot types.Shot) error {
	if strings.TrimSpace(shot.PromptFigure) == "" || len(shot.PromptVideo.Steps()) == 0 {
		return apperrors.New(apperrors.CodeLLMInvalidReply, "大模型返回提示词为空 LLM reply has empty prompts")
	}
	return nil
}
