package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storyboard-ai/internal/mocks"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/subtitle"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const shotSubtitle = `1
00:00:00,000 --> 00:00:01,500
大家好 欢迎收看

2
00:00:01,500 --> 00:00:03,000
普通人计熟悉陌生的世界
`

func newRunState(sb *types.Storyboard, saveDir string) *runState {
	return &runState{id: "run-test", sb: sb, saveDir: saveDir, logger: zap.NewNop()}
}

// doneStoryboard is a two-shot storyboard with every stage done and all
// files on disk.
func doneStoryboard(t *testing.T) *types.Storyboard {
	t.Helper()
	dir := t.TempDir()
	sb := &types.Storyboard{Path: filepath.Join(dir, "story.json")}
	for i, d := range []float64{5.0, 3.2} {
		name := []string{"a", "b"}[i]
		sb.Shots = append(sb.Shots, types.Shot{
			ID:           i,
			Text:         "旁白" + name,
			Audio:        name + ".wav",
			Duration:     d,
			Chapter:      "c",
			Description:  "d",
			Video:        &types.VideoRecord{Filepath: writeFile(t, filepath.Join(dir, name+".mp4"), "clip")},
			SubtitlePath: writeFile(t, filepath.Join(dir, name+".srt"), "1\n00:00:01,000 --> 00:00:02,000\n"+name+"\n"),
		})
		writeFile(t, filepath.Join(dir, name+".wav"), "wav")
	}
	return sb
}

func TestAssembleWritesArtifactsAndPublishes(t *testing.T) {
	sb := doneStoryboard(t)
	saveDir := t.TempDir()
	media := new(mocks.MockMediaTool)
	publisher := new(mocks.MockPublisher)
	svc := &Service{MediaTool: media, Publisher: publisher, Settings: Settings{PublishPrefix: "storyboards"}}

	dir := filepath.Dir(sb.Path)
	media.On("ConcatAudio", mock.Anything, []string{filepath.Join(dir, "a.wav"), filepath.Join(dir, "b.wav")}, mock.Anything).Return(nil)
	media.On("ConcatVideos", mock.Anything, []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}, mock.Anything).Return(nil)
	media.On("Mux", mock.Anything,
		filepath.Join(saveDir, "story.mp4"),
		filepath.Join(saveDir, "story_audio.wav"),
		filepath.Join(saveDir, "story.srt"),
		mock.Anything).Return(nil)
	publisher.On("Publish", mock.Anything, filepath.Join(saveDir, "story_final.mp4"), "storyboards/story/story_final.mp4").
		Return("oss://bucket/storyboards/story/story_final.mp4", nil)

	artifacts, err := svc.Assemble(context.Background(), sb, AssembleOptions{SaveDir: saveDir, Publish: true})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(saveDir, "story_final.mp4"), artifacts[ArtifactFinal])
	assert.Equal(t, "oss://bucket/storyboards/story/story_final.mp4", artifacts[ArtifactPublished])
	assert.FileExists(t, artifacts[ArtifactFinal])

	merged, err := subtitle.ParseFile(artifacts[ArtifactSubtitle])
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, 1, merged[0].Index)
	assert.Equal(t, 2, merged[1].Index)
	assert.Equal(t, 6*time.Second, merged[1].Start)
	media.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestAssembleBacksUpPreviousOutput(t *testing.T) {
	sb := doneStoryboard(t)
	saveDir := t.TempDir()
	old := writeFile(t, filepath.Join(saveDir, "story_final.mp4"), "previous cut")
	media := new(mocks.MockMediaTool)
	media.On("ConcatAudio", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	media.On("ConcatVideos", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	media.On("Mux", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(_, _, _, output string) error {
			return os.WriteFile(output, []byte("new cut"), 0o644)
		})

	_, err := (&Service{MediaTool: media}).Assemble(context.Background(), sb, AssembleOptions{SaveDir: saveDir})
	require.NoError(t, err)

	data, err := os.ReadFile(old)
	require.NoError(t, err)
	assert.Equal(t, "new cut", string(data))

	backups, err := filepath.Glob(filepath.Join(saveDir, "story_final_*.mp4"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err = os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "previous cut", string(data))
}

func TestAssembleRefusals(t *testing.T) {
	t.Run("video pending", func(t *testing.T) {
		sb := doneStoryboard(t)
		sb.Shots[1].VideoPending = true
		_, err := (&Service{MediaTool: new(mocks.MockMediaTool)}).Assemble(context.Background(), sb, AssembleOptions{SaveDir: t.TempDir()})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), "shot 1")
	})

	t.Run("audio file missing", func(t *testing.T) {
		sb := doneStoryboard(t)
		require.NoError(t, os.Remove(filepath.Join(filepath.Dir(sb.Path), "a.wav")))
		_, err := (&Service{MediaTool: new(mocks.MockMediaTool)}).Assemble(context.Background(), sb, AssembleOptions{SaveDir: t.TempDir()})
		require.Error(t, err)
		assert.True(t, apperrors.IsFileSystem(err))
	})
}

func TestTranscribeStage(t *testing.T) {
	sb := doneStoryboard(t)
	sb.Shots[0].SubtitlePath = ""
	sb.Shots[1].SubtitlePending = false
	saveDir := t.TempDir()

	transcriber := new(mocks.MockTranscriber)
	transcriber.On("Transcribe", mock.Anything, filepath.Join(filepath.Dir(sb.Path), "a.wav"), filepath.Join(saveDir, "subtitles")).
		Return(func(audio, outputDir string) (string, error) {
			return writeFile(t, filepath.Join(outputDir, "a.srt"), shotSubtitle), nil
		})
	svc := &Service{Transcriber: transcriber}

	tally := svc.runTranscribeStage(context.Background(), newRunState(sb, saveDir))

	assert.Equal(t, types.BatchSummary{Succeeded: 1}, tally.summary)
	assert.Equal(t, filepath.Join(saveDir, "subtitles", "a.srt"), sb.Shots[0].SubtitlePath)
	assert.False(t, sb.Shots[0].SubtitlePending)
	transcriber.AssertNumberOfCalls(t, "Transcribe", 1)
}

func TestTranscribeStageSkipsMissingAudio(t *testing.T) {
	sb := doneStoryboard(t)
	sb.Shots[0].SubtitlePath = ""
	sb.Shots[0].Audio = "gone.wav"
	sb.Shots[1].SubtitlePending = false
	transcriber := new(mocks.MockTranscriber)

	tally := (&Service{Transcriber: transcriber}).runTranscribeStage(context.Background(), newRunState(sb, t.TempDir()))

	assert.Equal(t, types.BatchSummary{Skipped: 1}, tally.summary)
	require.Len(t, tally.failures, 1)
	assert.Equal(t, "FileSystemError", tally.failures[0].Kind)
	transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestProofreadStage(t *testing.T) {
	sb := doneStoryboard(t)
	path := writeFile(t, filepath.Join(filepath.Dir(sb.Path), "a.srt"), shotSubtitle)
	sb.Shots = sb.Shots[:1]
	sb.Shots[0].SubtitlePath = path

	revised := strings.Replace(shotSubtitle, "普通人计熟悉陌生的世界", "普通人既熟悉又陌生的世界", 1)
	chat := new(mocks.MockChatCompleter)
	chat.On("ChatCompletion", mock.Anything, types.SubtitleProofreadSystem, mock.Anything).Return(revised, nil).Once()
	svc := &Service{ChatCompleter: chat, Settings: Settings{MinSimilarity: 0.5}}

	tally := svc.runProofreadStage(context.Background(), newRunState(sb, t.TempDir()))

	assert.Equal(t, types.BatchSummary{Succeeded: 1}, tally.summary)
	cues, err := subtitle.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "普通人既熟悉又陌生的世界", cues[1].Text)

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(path), "a_*.srt"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestProofreadStageKeepsRejectedRevision(t *testing.T) {
	sb := doneStoryboard(t)
	path := writeFile(t, filepath.Join(filepath.Dir(sb.Path), "a.srt"), shotSubtitle)
	sb.Shots = sb.Shots[:1]
	sb.Shots[0].SubtitlePath = path

	chat := new(mocks.MockChatCompleter)
	chat.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything).Return("1\n00:00:00,000 --> 00:00:03,000\n合并了\n", nil)
	svc := &Service{ChatCompleter: chat, Settings: Settings{MinSimilarity: 0.5, StageRetries: 1}}

	tally := svc.runProofreadStage(context.Background(), newRunState(sb, t.TempDir()))

	assert.Equal(t, types.BatchSummary{Skipped: 1}, tally.summary)
	require.Len(t, tally.failures, 1)
	assert.Equal(t, kindRevisionRejected, tally.failures[0].Kind)
	chat.AssertNumberOfCalls(t, "ChatCompletion", 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, shotSubtitle, string(data))
}

func TestFitDurationRetimesLongClip(t *testing.T) {
	dir := t.TempDir()
	clip := writeFile(t, filepath.Join(dir, "shot.mp4"), "clip")
	media := new(mocks.MockMediaTool)
	media.On("ProbeDuration", mock.Anything, clip).Return(5.2, nil)
	media.On("Retime", mock.Anything, clip, mock.Anything, 5.0).Return(func(_, output string, _ float64) error {
		return os.WriteFile(output, []byte("retimed"), 0o644)
	})
	svc := &Service{MediaTool: media}

	require.NoError(t, svc.fitDuration(context.Background(), newRunState(nil, dir), clip, 5.0))

	data, err := os.ReadFile(clip)
	require.NoError(t, err)
	assert.Equal(t, "retimed", string(data))
	media.AssertExpectations(t)
}

func TestFitDurationKeepsClipWithinTolerance(t *testing.T) {
	media := new(mocks.MockMediaTool)
	media.On("ProbeDuration", mock.Anything, "x.mp4").Return(5.005, nil)

	require.NoError(t, (&Service{MediaTool: media}).fitDuration(context.Background(), newRunState(nil, ""), "x.mp4", 5.0))
	media.AssertNotCalled(t, "Retime", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildShotVideoFailsOnInconsistentSteps(t *testing.T) {
	dir := t.TempDir()
	shot := &types.Shot{
		Duration: 6.0,
		Figure:   &types.FigureRecord{Filename: "f.png", Filepath: writeFile(t, filepath.Join(dir, "f.png"), "png")},
		PromptVideo: &types.PromptVideo{
			Process:  map[string]string{"1": "a", "2": "b"},
			Duration: map[string]float64{"1": 3, "2": 2},
		},
	}
	videos := new(mocks.MockVideoGenerator)
	svc := &Service{
		VideoGenerator: videos,
		FrameExtractor: new(mocks.MockFrameExtractor),
		MediaTool:      new(mocks.MockMediaTool),
		Settings:       Settings{MaxSegmentSeconds: 3, FrameRate: 16, ConsistencyPolicy: storyboard.PolicyFail},
	}

	_, err := svc.buildShotVideo(context.Background(), newRunState(&types.Storyboard{}, dir), shot)
	require.Error(t, err)
	assert.True(t, apperrors.IsConsistency(err))
	videos.AssertNotCalled(t, "GenerateVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	tally := newTally(types.StageVideo)
	tally.fail(0, err)
	assert.Equal(t, types.BatchSummary{Failed: 1}, tally.summary)
}
