package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/storage"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RunOptions selects what one RunStoryboard call does besides the
// generation stages, which always run for whatever is pending.
type RunOptions struct {
	RunID          string
	StoryboardPath string
	SaveDir        string
	Summary        string
	ManageInstance bool
	Transcribe     bool
	Proofread      bool
	Assemble       bool
	Publish        bool
	Events         appcore.EventSink
}

func RunOptionsFromRequest(req appcore.RunRequest, events appcore.EventSink) RunOptions {
	return RunOptions{
		RunID:          req.ID,
		StoryboardPath: req.StoryboardPath,
		SaveDir:        req.SaveDir,
		Summary:        req.Summary,
		ManageInstance: req.ManageInstance,
		Transcribe:     req.Transcribe,
		Proofread:      req.Proofread,
		Assemble:       req.Assemble,
		Publish:        req.Publish,
		Events:         events,
	}
}

// RunStoryboard brings every pending shot of a storyboard up to date and
// optionally transcribes, proofreads and assembles it. Per-shot failures are
// reported in the returned report; only problems with the storyboard as a
// whole come back as an error.
func (s *Service) RunStoryboard(ctx context.Context, opts RunOptions) (*types.RunReport, error) {
	if strings.TrimSpace(opts.StoryboardPath) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "分镜路径为空 Storyboard path is empty")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	logger := log.ForRun(opts.RunID, opts.StoryboardPath)
	report := &types.RunReport{
		RunID:          opts.RunID,
		StoryboardPath: opts.StoryboardPath,
		StartedAt:      now(),
		Artifacts:      map[string]string{},
	}
	record := &types.RunRecord{
		RunId:          opts.RunID,
		StoryboardPath: opts.StoryboardPath,
		SaveDir:        opts.SaveDir,
		Status:         types.RunStatusRunning,
	}
	persist(logger, record)

	r := &runState{id: opts.RunID, summary: opts.Summary, events: opts.Events, logger: logger}
	r.events.Emit(appcore.RunEvent{RunID: r.id, Stage: appcore.RunStagePreparing, Message: "loading storyboard"})

	err := s.runStoryboard(ctx, r, opts, report)
	report.FinishedAt = now()
	if r.sb != nil && err == nil {
		if path, werr := writeReport(r.sb, report); werr != nil {
			logger.Warn("写入运行报告失败 Write run report failed", zap.Error(werr))
		} else {
			report.Artifacts[ArtifactReport] = path
		}
		if path, aerr := archiveReport(r.id, report); aerr != nil {
			logger.Warn("归档运行报告失败 Archive run report failed", zap.Error(aerr))
		} else {
			report.Artifacts[ArtifactRunReport] = path
		}
	}

	record.SaveDir = r.saveDir
	record.ApplyReport(report)
	final := appcore.RunEvent{RunID: r.id, Stage: appcore.RunStageSucceeded}
	if err != nil {
		record.Status = types.RunStatusFailed
		record.FailReason = err.Error()
		final.Stage = appcore.RunStageFailed
		final.Err = err.Error()
		if ctx.Err() != nil {
			final.Stage = appcore.RunStageCanceled
		}
		logger.Error("运行失败 Run failed", zap.Error(err))
	} else {
		total := report.Total()
		record.Status = types.RunStatusSucceeded
		record.StatusMsg = fmt.Sprintf("succeeded %d, failed %d, skipped %d", total.Succeeded, total.Failed, total.Skipped)
		final.Message = record.StatusMsg
		logger.Info("运行完成 Run finished",
			zap.Int("succeeded", total.Succeeded),
			zap.Int("failed", total.Failed),
			zap.Int("skipped", total.Skipped))
	}
	persist(logger, record)
	r.events.Emit(final)
	return report, err
}

func (s *Service) runStoryboard(ctx context.Context, r *runState, opts RunOptions, report *types.RunReport) error {
	sb, err := storyboard.Load(opts.StoryboardPath)
	if err != nil {
		return err
	}
	ingest := storyboard.Ingest(sb, storyboard.FileExists)
	if err = storyboard.Validate(sb); err != nil {
		return err
	}
	r.sb = sb
	if ingest.Changed > 0 {
		if err = r.save(); err != nil {
			return err
		}
	}
	if r.saveDir, err = resolveSaveDir(opts.SaveDir); err != nil {
		return apperrors.Wrap(apperrors.CodeFileSystem, "解析保存目录失败 Resolve save dir failed", err)
	}

	plan, err := storyboard.Plan(sb)
	if err != nil {
		return err
	}
	counts := plan.Counts()
	r.logger.Info("运行计划 Run plan",
		zap.Int("shots", len(sb.Shots)),
		zap.Int("prompt", counts[types.StagePrompt]),
		zap.Int("figure", counts[types.StageFigure]),
		zap.Int("video", counts[types.StageVideo]))

	if !plan.Empty() {
		if err = s.runGeneration(ctx, r, opts, report); err != nil {
			return err
		}
	}

	if opts.Transcribe {
		tally := s.runTranscribeStage(ctx, r)
		tally.addTo(report)
		if err = r.saveIf(tally); err != nil {
			return err
		}
	}
	if opts.Proofread {
		s.runProofreadStage(ctx, r).addTo(report)
	}
	if opts.Assemble {
		s.runAssemblyStage(ctx, r, opts, report)
	}
	return ctx.Err()
}

// runGeneration runs the prompt, figure and video stages inside the
// instance bracket. The instance is stopped as soon as generation is over.
func (s *Service) runGeneration(ctx context.Context, r *runState, opts RunOptions, report *types.RunReport) error {
	if opts.ManageInstance {
		stop, err := s.startInstance(ctx, r)
		if err != nil {
			return err
		}
		defer func() {
			if err := stop(); err != nil {
				report.InstanceError = err.Error()
			}
		}()
	}

	stages := []func(context.Context, *runState) *stageTally{
		s.runPromptStage,
		s.runFigureStage,
		s.runVideoStage,
	}
	for _, run := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		tally := run(ctx, r)
		tally.addTo(report)
		if err := r.saveIf(tally); err != nil {
			return err
		}
	}
	return nil
}

// startInstance powers the GPU host on and waits for it to boot. The
// returned stop function is safe to call more than once and keeps trying
// even when ctx is already canceled.
func (s *Service) startInstance(ctx context.Context, r *runState) (func() error, error) {
	if s.InstanceManager == nil {
		return nil, errMissingCollaborator("instance manager")
	}
	id := s.Settings.InstanceID
	r.events.Emit(appcore.RunEvent{RunID: r.id, Stage: appcore.RunStagePreparing, Message: "starting instance"})
	status, err := s.InstanceManager.Start(ctx, id)
	if err != nil {
		return nil, err
	}
	if status != types.InstanceStatusSuccess {
		return nil, apperrors.Newf(apperrors.CodeInstanceLifecycle, "实例启动失败 Instance start failed", "status %q", status)
	}
	r.logger.Info("实例已开机，等待启动 Instance powered on, waiting for boot",
		zap.String("instance", id), zap.Duration("wait", s.Settings.StartupWait))

	var once sync.Once
	var stopErr error
	stop := func() error {
		once.Do(func() { stopErr = s.stopInstance(context.WithoutCancel(ctx), r, id) })
		return stopErr
	}
	if err = sleep(ctx, s.Settings.StartupWait); err != nil {
		_ = stop()
		return nil, err
	}
	return stop, nil
}

func (s *Service) stopInstance(ctx context.Context, r *runState, id string) error {
	attempts := s.Settings.StopRetries
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var status string
		status, err = s.InstanceManager.Stop(ctx, id)
		if err == nil && status == types.InstanceStatusSuccess {
			r.logger.Info("实例已关机 Instance stopped", zap.String("instance", id), zap.Int("attempt", attempt))
			return nil
		}
		if err == nil {
			err = apperrors.Newf(apperrors.CodeInstanceLifecycle, "实例关机失败 Instance stop failed", "status %q", status)
		}
		r.logger.Warn("实例关机失败，稍后重试 Instance stop failed, retrying",
			zap.String("instance", id), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < attempts {
			_ = sleep(ctx, s.Settings.StopInterval)
		}
	}
	r.logger.Error("实例关机失败 Instance stop gave up", zap.String("instance", id), zap.Error(err))
	return err
}

// runAssemblyStage records assembly as a storyboard-level stage with shot -1.
func (s *Service) runAssemblyStage(ctx context.Context, r *runState, opts RunOptions, report *types.RunReport) {
	tally := newTally(types.StageAssembly)
	r.emit(types.StageAssembly, 0, 1, -1, "assembling", nil)
	artifacts, err := s.Assemble(ctx, r.sb, AssembleOptions{SaveDir: r.saveDir, Publish: opts.Publish})
	for k, v := range artifacts {
		report.Artifacts[k] = v
	}
	if err != nil {
		r.logger.Warn("成片合成失败 Assembly failed", zap.Error(err))
		tally.fail(-1, err)
	} else {
		tally.ok()
	}
	r.emit(types.StageAssembly, 1, 1, -1, "", err)
	tally.addTo(report)
}

func (r *runState) save() error {
	backup, err := storyboard.Save(r.sb)
	if err != nil {
		return err
	}
	r.logger.Debug("分镜已保存 Storyboard saved", zap.String("backup", backup))
	return nil
}

// saveIf writes the storyboard when tally changed at least one shot.
func (r *runState) saveIf(tally *stageTally) error {
	if tally.summary.Succeeded == 0 {
		return nil
	}
	return r.save()
}

// writeReport stores report as YAML next to the storyboard file.
func writeReport(sb *types.Storyboard, report *types.RunReport) (string, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", err
	}
	path := filepath.Join(filepath.Dir(sb.Path), artifactBase(sb.Path)+"_report.yaml")
	if _, err = storyboard.WriteWithBackup(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// archiveReport keeps a per-run copy under the run directory, since the
// file next to the storyboard is replaced by the next run.
func archiveReport(runID string, report *types.RunReport) (string, error) {
	dir, err := resolveRunDir(runID)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.CodeFileWriteError, "create run dir failed", err)
	}
	path := filepath.Join(dir, "report.yaml")
	if err = os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.Wrap(apperrors.CodeFileWriteError, "write run report failed", err)
	}
	return path, nil
}

func persist(logger *zap.Logger, record *types.RunRecord) {
	if !storage.Ready() {
		return
	}
	if err := storage.SaveRun(record); err != nil {
		logger.Warn("保存运行记录失败 Save run record failed", zap.Error(err))
	}
}
