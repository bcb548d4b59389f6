package service

import (
	"context"
	"fmt"
	"path/filepath"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/subtitle"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/oss"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Artifact keys in RunReport.Artifacts.
const (
	ArtifactAudio     = "audio"
	ArtifactVideo     = "video"
	ArtifactSubtitle  = "subtitle"
	ArtifactFinal     = "final"
	ArtifactPublished = "published"
	ArtifactReport    = "report"
	ArtifactRunReport = "run_report"
)

// AssembleOptions controls the final mux.
type AssembleOptions struct {
	SaveDir string
	Publish bool
}

// Assemble joins the per-shot narration and clips of a fully generated
// storyboard, merges the shot subtitles and muxes everything into
// <save dir>/<json base>_final.mp4. Every output is backed up before it is
// overwritten.
func (s *Service) Assemble(ctx context.Context, sb *types.Storyboard, opts AssembleOptions) (map[string]string, error) {
	if s.MediaTool == nil {
		return nil, errMissingCollaborator("media tool")
	}
	saveDir, err := resolveSaveDir(opts.SaveDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFileSystem, "解析保存目录失败 Resolve save dir failed", err)
	}
	audios, videos, err := assemblyInputs(sb)
	if err != nil {
		return nil, err
	}

	base := artifactBase(sb.Path)
	artifacts := map[string]string{
		ArtifactAudio: filepath.Join(saveDir, base+"_audio.wav"),
		ArtifactVideo: filepath.Join(saveDir, base+".mp4"),
		ArtifactFinal: filepath.Join(saveDir, base+"_final.mp4"),
	}

	if _, err = replaceArtifact(artifacts[ArtifactAudio], func(tmp string) error {
		return s.MediaTool.ConcatAudio(ctx, audios, tmp)
	}); err != nil {
		return nil, err
	}
	if _, err = replaceArtifact(artifacts[ArtifactVideo], func(tmp string) error {
		return s.MediaTool.ConcatVideos(ctx, videos, tmp)
	}); err != nil {
		return nil, err
	}

	merged := subtitle.MergeStoryboard(sb)
	if len(merged.Cues) > 0 {
		srtPath := filepath.Join(saveDir, base+".srt")
		if _, err = storyboard.WriteWithBackup(srtPath, []byte(merged.SRT())); err != nil {
			return nil, apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", srtPath, err)
		}
		artifacts[ArtifactSubtitle] = srtPath
	} else {
		log.GetLogger().Warn("没有可用字幕，成片不含字幕 No subtitles to mux", zap.String("storyboard", sb.Path))
	}

	if _, err = replaceArtifact(artifacts[ArtifactFinal], func(tmp string) error {
		return s.MediaTool.Mux(ctx, artifacts[ArtifactVideo], artifacts[ArtifactAudio], artifacts[ArtifactSubtitle], tmp)
	}); err != nil {
		return nil, err
	}
	log.GetLogger().Info("成片已合成 Final video assembled", zap.String("path", artifacts[ArtifactFinal]))

	if opts.Publish {
		if s.Publisher == nil {
			return artifacts, errMissingCollaborator("publisher")
		}
		final := artifacts[ArtifactFinal]
		key := oss.ObjectKey(s.Settings.PublishPrefix, base, filepath.Base(final))
		location, err := s.Publisher.Publish(ctx, final, key)
		if err != nil {
			return artifacts, err
		}
		artifacts[ArtifactPublished] = location
	}
	return artifacts, nil
}

// assemblyInputs lists narration and clip paths in storyboard order. A
// shot that is not fully generated or has no audio refuses the whole
// assembly.
func assemblyInputs(sb *types.Storyboard) ([]string, []string, error) {
	if len(sb.Shots) == 0 {
		return nil, nil, apperrors.New(apperrors.CodeValidation, "分镜为空 Storyboard is empty")
	}
	var notReady []string
	for i, shot := range sb.Shots {
		var missing []string
		if shot.VideoPending || shot.Video == nil {
			missing = append(missing, "video")
		}
		if strings.TrimSpace(shot.Audio) == "" {
			missing = append(missing, "audio")
		}
		if len(missing) > 0 {
			notReady = append(notReady, fmt.Sprintf("shot %d: %s", i, strings.Join(missing, ", ")))
		}
	}
	if len(notReady) > 0 {
		return nil, nil, apperrors.Newf(apperrors.CodeValidation, "分镜尚未全部生成 Storyboard not ready for assembly", "%s", strings.Join(notReady, "; "))
	}

	audios := lo.Map(sb.Shots, func(shot types.Shot, _ int) string { return resolveAudio(sb, shot.Audio) })
	videos := lo.Map(sb.Shots, func(shot types.Shot, _ int) string { return storyboard.ResolvePath(sb, shot.Video.Filepath) })
	for _, p := range append(append([]string(nil), audios...), videos...) {
		if err := requireFile(p); err != nil {
			return nil, nil, err
		}
	}
	return audios, videos, nil
}
