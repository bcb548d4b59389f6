package taskrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/service"
	"storyboard-ai/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor blocks each run until release is closed or the run is
// canceled.
type fakeExecutor struct {
	started chan service.RunOptions
	release chan struct{}
	err     error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{started: make(chan service.RunOptions, 8), release: make(chan struct{})}
}

func (f *fakeExecutor) RunStoryboard(ctx context.Context, opts service.RunOptions) (*types.RunReport, error) {
	f.started <- opts
	opts.Events.Emit(appcore.RunEvent{RunID: opts.RunID, Stage: appcore.RunStageGenerating, Message: "working"})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.release:
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.RunReport{
		RunID:     opts.RunID,
		Artifacts: map[string]string{service.ArtifactFinal: "/out/story_final.mp4"},
	}, nil
}

func waitResult(t *testing.T, h appcore.RunHandle) appcore.RunResult {
	t.Helper()
	select {
	case res := <-h.Result():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return appcore.RunResult{}
	}
}

func TestSubmitRunsAndReportsResult(t *testing.T) {
	exec := newFakeExecutor()
	var seen []appcore.RunStage
	events := make(chan appcore.RunEvent, 16)
	r := New(exec, func(ev appcore.RunEvent) { events <- ev }, Config{})
	defer r.Close()

	h, err := r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/data/story.json", Assemble: true})
	require.NoError(t, err)
	require.NotEmpty(t, h.ID())

	opts := <-exec.started
	assert.Equal(t, h.ID(), opts.RunID)
	assert.True(t, opts.Assemble)
	close(exec.release)

	res := waitResult(t, h)
	require.NoError(t, res.Err)
	assert.Equal(t, appcore.RunStageSucceeded, res.Stage)
	assert.Equal(t, "/out/story_final.mp4", res.OutputPath)

	for ev := range h.Events() {
		seen = append(seen, ev.Stage)
	}
	assert.Equal(t, []appcore.RunStage{appcore.RunStageQueued, appcore.RunStageGenerating}, seen)
	assert.Len(t, events, 2)

	_, ok := r.Lookup(h.ID())
	assert.False(t, ok)
}

func TestSubmitRejectsDuplicateStoryboard(t *testing.T) {
	exec := newFakeExecutor()
	r := New(exec, nil, Config{})
	defer r.Close()

	first, err := r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/data/story.json"})
	require.NoError(t, err)
	<-exec.started

	_, err = r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/data/../data/story.json"})
	assert.ErrorIs(t, err, ErrDuplicateRun)

	_, err = r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/data/other.json"})
	assert.NoError(t, err)

	close(exec.release)
	waitResult(t, first)

	// the path is free again once the first run is done
	second, err := r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/data/story.json"})
	require.NoError(t, err)
	waitResult(t, second)
}

func TestCancelRunningRun(t *testing.T) {
	exec := newFakeExecutor()
	r := New(exec, nil, Config{})
	defer r.Close()

	h, err := r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/data/story.json"})
	require.NoError(t, err)
	<-exec.started

	require.NoError(t, r.Cancel(h.ID()))
	res := waitResult(t, h)
	assert.Equal(t, appcore.RunStageCanceled, res.Stage)
	assert.ErrorIs(t, res.Err, context.Canceled)

	assert.ErrorIs(t, r.Cancel("nope"), ErrRunNotFound)
}

func TestFailedRun(t *testing.T) {
	exec := newFakeExecutor()
	exec.err = errors.New("storyboard unreadable")
	close(exec.release)
	r := New(exec, nil, Config{})
	defer r.Close()

	h, err := r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/data/story.json"})
	require.NoError(t, err)
	res := waitResult(t, h)
	assert.Equal(t, appcore.RunStageFailed, res.Stage)
	assert.EqualError(t, res.Err, "storyboard unreadable")
}

func TestQueueFullAndClosed(t *testing.T) {
	exec := newFakeExecutor()
	r := New(exec, nil, Config{QueueSize: 1, Concurrency: 1})

	_, err := r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/a.json"})
	require.NoError(t, err)
	<-exec.started
	_, err = r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/b.json"})
	require.NoError(t, err)
	_, err = r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/c.json"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, r.Pending())

	r.Close()
	_, err = r.Submit(context.Background(), appcore.RunRequest{StoryboardPath: "/d.json"})
	assert.ErrorIs(t, err, ErrRunnerStopped)

	_, err = r.Submit(context.Background(), appcore.RunRequest{})
	assert.ErrorIs(t, err, ErrStoryboardPath)
}
