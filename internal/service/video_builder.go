package service

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/util"
	"strings"

	"go.uber.org/zap"
)

// runVideoStage builds the clip of every ready shot, one shot at a time.
func (s *Service) runVideoStage(ctx context.Context, r *runState) *stageTally {
	tally := newTally(types.StageVideo)
	pending := readyShots(r.sb, types.StageVideo)
	for n, i := range pending {
		if ctx.Err() != nil {
			tally.fail(i, apperrors.Wrap(apperrors.CodeServiceTimeout, "运行已取消 Run canceled", ctx.Err()))
			continue
		}
		record, err := s.buildShotVideo(ctx, r, &r.sb.Shots[i])
		r.emit(types.StageVideo, n+1, len(pending), i, "", err)
		if err != nil {
			r.logger.Warn("视频生成失败 Video generation failed", zap.Int("shot", i), zap.Error(err))
			tally.fail(i, err)
			continue
		}
		r.sb.Shots[i] = storyboard.Advance(r.sb.Shots[i], types.StageResult{
			Stage:  types.StageVideo,
			Status: types.StageDone,
			Shot:   types.Shot{Video: record},
		})
		tally.ok()
	}
	return tally
}

// buildShotVideo plans the segments of shot and builds them, retrying the
// whole chain on transient errors.
func (s *Service) buildShotVideo(ctx context.Context, r *runState, shot *types.Shot) (*types.VideoRecord, error) {
	if shot.Figure == nil {
		return nil, apperrors.Newf(apperrors.CodeValidation, "缺少分镜图片 Missing figure", "shot %d", shot.ID)
	}
	if err := requireFile(shot.Figure.Filepath); err != nil {
		return nil, err
	}
	segments, err := storyboard.PlanSegments(shot, s.Settings.MaxSegmentSeconds, s.Settings.FrameRate)
	if err != nil {
		return nil, err
	}
	if err = storyboard.CheckConsistency(shot, s.Settings.ConsistencyPolicy); err != nil {
		return nil, err
	}
	if s.VideoGenerator == nil {
		return nil, errMissingCollaborator("video generator")
	}
	if s.FrameExtractor == nil && len(segments) > 1 {
		return nil, errMissingCollaborator("frame extractor")
	}
	if s.MediaTool == nil {
		return nil, errMissingCollaborator("media tool")
	}

	var record *types.VideoRecord
	err = withRetry(ctx, s.Settings.StageRetries, func() error {
		var err error
		record, err = s.chainSegments(ctx, r, shot, segments)
		return err
	})
	return record, err
}

// chainSegments generates segments strictly in order. Segment k starts
// from the figure (k = 1) or from the last frame of segment k-1. Any
// failure aborts the shot before anything is recorded.
func (s *Service) chainSegments(ctx context.Context, r *runState, shot *types.Shot, segments []storyboard.Segment) (*types.VideoRecord, error) {
	figureBase := strings.TrimSuffix(shot.Figure.Filename, filepath.Ext(shot.Figure.Filename))
	if figureBase == "" {
		figureBase = strings.TrimSuffix(filepath.Base(shot.Figure.Filepath), filepath.Ext(shot.Figure.Filepath))
	}
	workDir := filepath.Join(r.saveDir, figureBase)

	seed := shot.Figure.Filepath
	records := make([]types.SegmentRecord, 0, len(segments))
	clips := make([]string, 0, len(segments))
	for _, seg := range segments {
		clip, err := s.VideoGenerator.GenerateVideo(ctx, seed, seg.Prompt, seg.Frames)
		if err != nil {
			return nil, err
		}
		if err = requireFile(clip); err != nil {
			return nil, err
		}
		segPath := filepath.Join(workDir, fmt.Sprintf("%s_%d%s", figureBase, seg.Index, clipExt(clip)))
		if err = copyInto(clip, segPath); err != nil {
			return nil, err
		}

		rec := types.SegmentRecord{
			Index:     seg.Index,
			Filepath:  segPath,
			SeedImage: seed,
			Duration:  seg.Duration,
			Frames:    seg.Frames,
		}
		if seg.Index < len(segments) {
			framePath := filepath.Join(workDir, fmt.Sprintf("%s_%d.png", figureBase, seg.Index))
			last, err := s.FrameExtractor.ExtractLastFrame(ctx, segPath, framePath)
			if err != nil {
				return nil, err
			}
			if err = requireFile(last); err != nil {
				return nil, err
			}
			rec.LastFrame = last
			seed = last
		}
		records = append(records, rec)
		clips = append(clips, segPath)
		r.logger.Debug("视频分段完成 Segment done", zap.Int("shot", shot.ID), zap.Stringer("segment", seg))
	}

	final := filepath.Join(r.saveDir, figureBase+".mp4")
	if _, err := replaceArtifact(final, func(tmp string) error {
		return s.MediaTool.ConcatVideos(ctx, clips, tmp)
	}); err != nil {
		return nil, err
	}
	if err := s.fitDuration(ctx, r, final, shot.Duration); err != nil {
		return nil, err
	}

	r.logger.Info("分镜视频已生成 Shot video built",
		zap.Int("shot", shot.ID), zap.Int("segments", len(segments)), zap.String("path", final))
	return &types.VideoRecord{
		Filename:        filepath.Base(final),
		Filepath:        final,
		Steps:           len(segments),
		GeneratedVideos: clips,
		Segments:        records,
		Timestamp:       util.Timestamp(now()),
	}, nil
}

// fitDuration retimes path in place when its probed length is off by more
// than the tolerance.
func (s *Service) fitDuration(ctx context.Context, r *runState, path string, target float64) error {
	probed, err := s.MediaTool.ProbeDuration(ctx, path)
	if err != nil {
		return err
	}
	if math.Abs(probed-target) <= storyboard.DurationEpsilon {
		return nil
	}
	r.logger.Info("视频时长与分镜不符，重新调整 Retiming clip",
		zap.String("path", path), zap.Float64("probed", probed), zap.Float64("target", target))
	var retimeErr error
	err = storyboard.ReplaceFile(path, func(tmp string) error {
		retimeErr = s.MediaTool.Retime(ctx, path, tmp, target)
		return retimeErr
	})
	if retimeErr != nil {
		return retimeErr
	}
	if err != nil {
		return apperrors.WrapWithDetail(apperrors.CodeFileSystem, "文件操作失败 File operation failed", path, err)
	}
	return nil
}

func clipExt(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		return ext
	}
	return ".mp4"
}
