// Package buzz talks to a Buzz (whisper) transcription server. The server
// runs one task at a time and is polled through /status.
package buzz

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/gradio"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client implements types.Transcriber
type Client struct {
	http          *resty.Client
	MaxWait       time.Duration
	CheckInterval time.Duration
}

type TaskRecord struct {
	TaskId  string `json:"task_id"`
	SrtFile string `json:"srt_file"`
}

type Status struct {
	IsProcessing bool         `json:"is_processing"`
	CurrentTask  string       `json:"current_task"`
	Progress     float64      `json:"progress"`
	LastTaskId   string       `json:"last_task_id"`
	TaskHistory  []TaskRecord `json:"task_history"`
}

type UploadResult struct {
	TaskId  string `json:"task_id"`
	Message string `json:"message"`
	SrtFile string `json:"srt_file"`
}

func NewClient(baseUrl string, maxWait, checkInterval time.Duration) *Client {
	if checkInterval <= 0 {
		checkInterval = 2 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 300 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseUrl, "/")).
		SetTimeout(2 * time.Minute)
	return &Client{http: c, MaxWait: maxWait, CheckInterval: checkInterval}
}

func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var status Status
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&status).
		ForceContentType("application/json").
		Get("/status")
	if err = gradio.CheckResponse(ctx, "status", resp, err); err != nil {
		return nil, err
	}
	return &status, nil
}

// Upload starts a transcription. The server refuses work while another task
// is running, which is reported as CodeServiceBusy.
func (c *Client) Upload(ctx context.Context, audioPath string) (*UploadResult, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeFileNotFound, "文件不存在 File not found", audioPath, err)
	}
	status, err := c.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status.IsProcessing {
		return nil, apperrors.Newf(apperrors.CodeServiceBusy, "转录服务忙 Transcription server busy", "current task %s", status.CurrentTask)
	}

	var result UploadResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetFile("file", audioPath).
		SetResult(&result).
		ForceContentType("application/json").
		Post("/transcribe/upload")
	if err = gradio.CheckResponse(ctx, "upload", resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

// Wait polls until the server is idle or MaxWait elapses.
func (c *Client) Wait(ctx context.Context) (*Status, error) {
	deadline := time.Now().Add(c.MaxWait)
	for {
		status, err := c.GetStatus(ctx)
		if err != nil {
			log.GetLogger().Warn("获取转录状态失败 Status poll failed", zap.Error(err))
		} else if !status.IsProcessing {
			return status, nil
		} else {
			log.GetLogger().Debug("转录进行中 Transcribing",
				zap.String("task", status.CurrentTask), zap.Float64("progress", status.Progress))
		}

		if !time.Now().Add(c.CheckInterval).Before(deadline) {
			return nil, apperrors.Newf(apperrors.CodeServiceTimeout, "转录超时 Transcription timed out", "not finished within %s", c.MaxWait)
		}
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.CodeServiceTimeout, "转录超时 Transcription timed out", ctx.Err())
		case <-time.After(c.CheckInterval):
		}
	}
}

func (c *Client) Download(ctx context.Context, srtFile, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", dst, err)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetOutput(dst).
		Get("/download/" + url.PathEscape(srtFile))
	if err = gradio.CheckResponse(ctx, "download", resp, err); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// Transcribe uploads audioPath, waits for the result and saves it as
// <outputDir>/<audio base>.srt.
func (c *Client) Transcribe(ctx context.Context, audioPath, outputDir string) (string, error) {
	upload, err := c.Upload(ctx, audioPath)
	if err != nil {
		return "", err
	}
	log.GetLogger().Info("音频已上传 Audio uploaded", zap.String("audio", audioPath), zap.String("task", upload.TaskId))

	status, err := c.Wait(ctx)
	if err != nil {
		return "", err
	}

	srtFile := upload.SrtFile
	if srtFile == "" && len(status.TaskHistory) > 0 {
		srtFile = status.TaskHistory[len(status.TaskHistory)-1].SrtFile
	}
	if srtFile == "" {
		return "", apperrors.Newf(apperrors.CodeServiceFailed, "转录结果缺失 Transcription produced no subtitle", "%s", audioPath)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	dst := filepath.Join(outputDir, base+".srt")
	if err = c.Download(ctx, srtFile, dst); err != nil {
		return "", err
	}
	log.GetLogger().Info("字幕已下载 Subtitle downloaded", zap.String("path", dst))
	return dst, nil
}
