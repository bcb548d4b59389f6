package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyboard-ai/config"
	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/progress"
	"storyboard-ai/internal/storage"
	"storyboard-ai/internal/taskrunner"
	"storyboard-ai/internal/types"
	apperrors "storyboard-ai/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	got       []appcore.RunRequest
	err       error
	canceled  []string
	cancelErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, req appcore.RunRequest) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.got = append(q.got, req)
	return "run-1", nil
}

func (q *fakeQueue) Cancel(runID string) error {
	q.canceled = append(q.canceled, runID)
	return q.cancelErr
}

type envelope struct {
	Error     int32           `json:"error"`
	Msg       string          `json:"msg"`
	Detail    string          `json:"detail"`
	RunId     string          `json:"run_id"`
	Retryable bool            `json:"retryable"`
	Data      json.RawMessage `json:"data"`
}

func newTestRouter(q RunQueue, broker *progress.Broker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(q, broker, config.QueueModeMemory)
	api := r.Group("/api")
	api.POST("/runs", h.StartRun)
	api.GET("/runs", h.GetRunHistory)
	api.GET("/runs/:runId", h.GetRun)
	api.GET("/runs/:runId/events", h.RunEvents)
	api.POST("/runs/:runId/cancel", h.CancelRun)
	api.DELETE("/runs/:runId", h.DeleteRun)
	api.POST("/storyboard/check", h.CheckStoryboard)
	api.POST("/storyboard/merge-subtitles", h.MergeSubtitles)
	api.POST("/storyboard/import", h.ImportStoryboard)
	api.GET("/config", h.GetConfig)
	api.GET("/health", h.Health)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func withoutDB(t *testing.T) {
	t.Helper()
	old := storage.DB
	storage.DB = nil
	t.Cleanup(func() { storage.DB = old })
}

func withDB(t *testing.T) {
	t.Helper()
	old := storage.DB
	t.Cleanup(func() { storage.DB = old })
	require.NoError(t, storage.OpenDB(filepath.Join(t.TempDir(), "history.db")))
}

func TestStartRun(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(q, progress.NewBroker(0, 0))

	env := do(t, r, http.MethodPost, "/api/runs", `{"storyboard_path": "/data/story.json", "summary": "雨夜", "assemble": true}`)
	require.Equal(t, int32(0), env.Error, env.Msg)
	var data struct {
		RunId string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "run-1", data.RunId)
	assert.Equal(t, "run-1", env.RunId)

	require.Len(t, q.got, 1)
	assert.Equal(t, "/data/story.json", q.got[0].StoryboardPath)
	assert.Equal(t, "雨夜", q.got[0].Summary)
	assert.True(t, q.got[0].Assemble)
	assert.False(t, q.got[0].Publish)
}

func TestStartRunErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		queueErr  error
		code      int32
		retryable bool
	}{
		{name: "missing path", body: `{"summary": "x"}`, code: apperrors.CodeInvalidParams},
		{name: "bad json", body: `{`, code: apperrors.CodeInvalidParams},
		{name: "duplicate", body: `{"storyboard_path": "/s.json"}`, queueErr: taskrunner.ErrDuplicateRun, code: apperrors.CodeServiceBusy, retryable: true},
		{name: "full", body: `{"storyboard_path": "/s.json"}`, queueErr: taskrunner.ErrQueueFull, code: apperrors.CodeServiceBusy, retryable: true},
		{name: "redis down", body: `{"storyboard_path": "/s.json"}`, queueErr: errors.New("dial tcp: refused"), code: apperrors.CodeServiceFailed, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeQueue{err: tt.queueErr}, progress.NewBroker(0, 0))
			env := do(t, r, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, tt.code, env.Error)
			assert.Equal(t, tt.retryable, env.Retryable)
		})
	}
}

func TestGetRunFromBroker(t *testing.T) {
	withoutDB(t)
	broker := progress.NewBroker(0, 0)
	broker.Publish(appcore.RunEvent{RunID: "run-1", Stage: appcore.RunStageQueued})
	broker.Publish(appcore.RunEvent{RunID: "run-1", Stage: appcore.RunStageGenerating, Progress: appcore.NewRunProgress(types.StageFigure, 1, 4, "")})
	r := newTestRouter(&fakeQueue{}, broker)

	env := do(t, r, http.MethodGet, "/api/runs/run-1", "")
	require.Equal(t, int32(0), env.Error)
	var data struct {
		Record    *types.RunRecord `json:"record"`
		LastEvent struct {
			Stage    string `json:"stage"`
			Progress struct {
				Percent float64 `json:"percent"`
			} `json:"progress"`
		} `json:"last_event"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Nil(t, data.Record)
	assert.Equal(t, "generating", data.LastEvent.Stage)
	assert.InDelta(t, 25.0, data.LastEvent.Progress.Percent, 0.001)

	env = do(t, r, http.MethodGet, "/api/runs/nope", "")
	assert.Equal(t, int32(apperrors.CodeNotFound), env.Error)
	assert.Equal(t, "nope", env.RunId)
}

func TestRunHistoryAndDelete(t *testing.T) {
	withDB(t)
	require.NoError(t, storage.SaveRun(&types.RunRecord{
		RunId:          "run-1",
		StoryboardPath: "/data/story.json",
		Status:         types.RunStatusSucceeded,
		Failures:       []types.ShotFailure{{Shot: 2, Stage: types.StageVideo, Kind: "TransientServiceError", Message: "timeout"}},
	}))
	broker := progress.NewBroker(0, 0)
	r := newTestRouter(&fakeQueue{}, broker)

	env := do(t, r, http.MethodGet, "/api/runs/run-1", "")
	require.Equal(t, int32(0), env.Error)
	var status struct {
		Record types.RunRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, types.RunStatusSucceeded, status.Record.Status)
	require.Len(t, status.Record.Failures, 1)
	assert.Equal(t, 2, status.Record.Failures[0].Shot)

	env = do(t, r, http.MethodGet, "/api/runs?limit=10", "")
	require.Equal(t, int32(0), env.Error)
	var history []types.RunRecord
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 1)

	broker.Publish(appcore.RunEvent{RunID: "run-1", Stage: appcore.RunStageGenerating})
	env = do(t, r, http.MethodDelete, "/api/runs/run-1", "")
	assert.Equal(t, int32(apperrors.CodeServiceBusy), env.Error)

	broker.Publish(appcore.RunEvent{RunID: "run-1", Stage: appcore.RunStageSucceeded})
	env = do(t, r, http.MethodDelete, "/api/runs/run-1", "")
	require.Equal(t, int32(0), env.Error)
	_, err := storage.GetRun("run-1")
	assert.Error(t, err)
}

func TestRunHistoryWithoutDB(t *testing.T) {
	withoutDB(t)
	r := newTestRouter(&fakeQueue{}, progress.NewBroker(0, 0))
	env := do(t, r, http.MethodGet, "/api/runs", "")
	assert.Equal(t, int32(apperrors.CodeDBError), env.Error)
}

func TestCancelRun(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(q, progress.NewBroker(0, 0))

	env := do(t, r, http.MethodPost, "/api/runs/run-7/cancel", "")
	assert.Equal(t, int32(0), env.Error)
	assert.Equal(t, []string{"run-7"}, q.canceled)

	q.cancelErr = taskrunner.ErrRunNotFound
	env = do(t, r, http.MethodPost, "/api/runs/run-8/cancel", "")
	assert.Equal(t, int32(apperrors.CodeNotFound), env.Error)
}

func writeStoryboard(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "story.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCheckStoryboard(t *testing.T) {
	path := writeStoryboard(t, t.TempDir(), `[
  {"text": "少年走进雨夜", "audio": "a1.wav", "duration": 6.5, "chapter": "第一章", "description": "雨夜街头"},
  {"text": "他停下脚步", "audio": "a2.wav", "duration": 2.0, "chapter": "第一章", "description": "路灯"}
]`)
	r := newTestRouter(&fakeQueue{}, progress.NewBroker(0, 0))

	body, _ := json.Marshal(map[string]string{"storyboard_path": path})
	env := do(t, r, http.MethodPost, "/api/storyboard/check", string(body))
	require.Equal(t, int32(0), env.Error, env.Msg)
	var data struct {
		Ingest struct {
			Shots int `json:"shots"`
		} `json:"ingest"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 2, data.Ingest.Shots)
	assert.Equal(t, map[string]int{"prompt": 2, "figure": 2, "video": 2}, data.Counts)

	env = do(t, r, http.MethodPost, "/api/storyboard/check", `{"storyboard_path": "/does/not/exist.json"}`)
	assert.Equal(t, int32(apperrors.CodeStoryboardRead), env.Error)
}

func TestMergeSubtitles(t *testing.T) {
	dir := t.TempDir()
	srt := filepath.Join(dir, "a.srt")
	require.NoError(t, os.WriteFile(srt, []byte("1\n00:00:01,000 --> 00:00:02,000\n第一句\n"), 0o644))
	path := writeStoryboard(t, dir, `[
  {"text": "少年走进雨夜", "audio": "a1.wav", "duration": 5.0, "chapter": "第一章", "description": "雨夜街头", "SRT_Path": "`+filepath.ToSlash(srt)+`"}
]`)
	saveDir := t.TempDir()
	r := newTestRouter(&fakeQueue{}, progress.NewBroker(0, 0))

	body, _ := json.Marshal(map[string]string{"storyboard_path": path, "save_dir": saveDir})
	env := do(t, r, http.MethodPost, "/api/storyboard/merge-subtitles", string(body))
	require.Equal(t, int32(0), env.Error, env.Msg)
	var data struct {
		Path string `json:"path"`
		Cues int    `json:"cues"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, filepath.Join(saveDir, "story.srt"), data.Path)
	assert.Equal(t, 1, data.Cues)
	assert.FileExists(t, data.Path)
}

func TestImportStoryboard(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "ExportAudioInfo.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[
  {"text": "少年走进雨夜", "audio": "a1.wav", "duration": 6.5, "chapter": "第一章", "description": "雨夜街头"}
]`), 0o644))
	path := filepath.Join(dir, "story.json")
	r := newTestRouter(&fakeQueue{}, progress.NewBroker(0, 0))

	body, _ := json.Marshal(map[string]string{"seed_path": seed, "storyboard_path": path})
	env := do(t, r, http.MethodPost, "/api/storyboard/import", string(body))
	require.Equal(t, int32(0), env.Error, env.Msg)
	var data struct {
		Path  string `json:"path"`
		Shots int    `json:"shots"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, path, data.Path)
	assert.Equal(t, 1, data.Shots)
	assert.FileExists(t, path)

	env = do(t, r, http.MethodPost, "/api/storyboard/import", `{"seed_path": "x.json"}`)
	assert.Equal(t, int32(apperrors.CodeInvalidParams), env.Error)
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	old := config.Conf
	t.Cleanup(func() { config.Conf = old })
	config.Conf.Llm.ApiKey = "sk-live-secret"

	r := newTestRouter(&fakeQueue{}, progress.NewBroker(0, 0))
	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotContains(t, w.Body.String(), "sk-live-secret")
	assert.Contains(t, w.Body.String(), "******")
}

func TestHealth(t *testing.T) {
	withoutDB(t)
	r := newTestRouter(&fakeQueue{}, progress.NewBroker(0, 0))
	env := do(t, r, http.MethodGet, "/api/health", "")
	require.Equal(t, int32(0), env.Error)
	assert.JSONEq(t, `{"status": "ok", "queue_mode": "memory", "history_db": false}`, string(env.Data))
}

func TestRunEventsStreamsHistoryThenCloses(t *testing.T) {
	broker := progress.NewBroker(0, 0)
	broker.Publish(appcore.RunEvent{RunID: "run-1", Stage: appcore.RunStageQueued})
	broker.Publish(appcore.RunEvent{RunID: "run-1", Stage: appcore.RunStageSucceeded, Message: "succeeded 3, failed 0, skipped 0"})

	srv := httptest.NewServer(newTestRouter(&fakeQueue{}, broker))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/run-1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var stages []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		var ev struct {
			Stage string `json:"stage"`
		}
		require.NoError(t, json.NewDecoder(bytes.NewReader(msg)).Decode(&ev))
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []string{"queued", "succeeded"}, stages)
}

func TestRunEventsUnknownRun(t *testing.T) {
	broker := progress.NewBroker(0, 0)
	r := newTestRouter(&fakeQueue{}, broker)

	env := do(t, r, http.MethodGet, "/api/runs/ghost/events", "")
	assert.Equal(t, int32(apperrors.CodeNotFound), env.Error)
	assert.Equal(t, "ghost", env.RunId)
	assert.Nil(t, broker.History("ghost"))
}
