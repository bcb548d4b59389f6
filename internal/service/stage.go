package service

import (
	"context"
	"os"
	"path/filepath"
	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/util"
	"time"

	"go.uber.org/zap"
)

var now = time.Now

// sleep waits for d or until ctx is done.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runState is what the stages of one run share. Only the goroutine driving
// the run touches sb; workers get clones.
type runState struct {
	id      string
	sb      *types.Storyboard
	saveDir string
	summary string
	events  appcore.EventSink
	logger  *zap.Logger
}

func (r *runState) emit(stage types.Stage, current, total int, shot int, message string, err error) {
	ev := appcore.RunEvent{
		RunID:    r.id,
		Stage:    appcore.StageFor(stage),
		Progress: appcore.NewRunProgress(stage, current, total, message),
		Message:  message,
	}
	if shot >= 0 {
		ev.Shot = &shot
	}
	if err != nil {
		ev.Err = err.Error()
	}
	r.events.Emit(ev)
}

// stageTally collects per-shot outcomes of one stage.
type stageTally struct {
	stage    types.Stage
	summary  types.BatchSummary
	failures []types.ShotFailure
}

func newTally(stage types.Stage) *stageTally {
	return &stageTally{stage: stage}
}

func (t *stageTally) ok() {
	t.summary.Succeeded++
}

// fail records err against shot. Validation and file system problems skip
// the shot; everything else counts as a failure.
func (t *stageTally) fail(shot int, err error) {
	kind := apperrors.KindOf(err)
	skipped := kind == apperrors.KindValidation || kind == apperrors.KindFileSystem
	if skipped {
		t.summary.Skipped++
	} else {
		t.summary.Failed++
	}
	t.failures = append(t.failures, types.ShotFailure{
		Shot:    shot,
		Stage:   t.stage,
		Kind:    kind.String(),
		Message: err.Error(),
		Skipped: skipped,
	})
}

func (t *stageTally) addTo(report *types.RunReport) {
	report.AddStage(t.stage, t.summary, t.failures)
}

// withRetry runs call once plus up to retries more times while it fails
// with a transient error.
func withRetry(ctx context.Context, retries int, call func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = call(); err == nil || !apperrors.IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func errMissingCollaborator(name string) error {
	return apperrors.Newf(apperrors.CodeInvalidParams, "服务未配置 Collaborator not configured", "%s", name)
}

func requireFile(path string) error {
	if path == "" || !storyboard.FileExists(path) {
		return apperrors.Newf(apperrors.CodeFileNotFound, "文件不存在 File not found", "%q", path)
	}
	return nil
}

// timestampedPath returns <dir>/<prefix><timestamp><ext> that does not
// exist yet.
func timestampedPath(dir, prefix, ext string) string {
	t := now()
	for {
		p := filepath.Join(dir, prefix+util.Timestamp(t)+ext)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p
		}
		t = t.Add(time.Millisecond)
	}
}

// copyInto copies src to dst unless they are the same file.
func copyInto(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	if err := storyboard.CopyFile(src, dst); err != nil {
		return apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", dst, err)
	}
	return nil
}

// replaceArtifact backs up path and lets produce write its replacement.
// Errors from produce come back unchanged; backup and rename problems are
// file system errors.
func replaceArtifact(path string, produce func(tmp string) error) (string, error) {
	var produceErr error
	backup, err := storyboard.ReplaceWithBackup(path, func(tmp string) error {
		produceErr = produce(tmp)
		return produceErr
	})
	if produceErr != nil {
		return "", produceErr
	}
	if err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeFileSystem, "文件操作失败 File operation failed", path, err)
	}
	return backup, nil
}
