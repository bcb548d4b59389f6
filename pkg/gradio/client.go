// Package gradio calls the HTTP API of Gradio apps, which is how the image
// and video models on the GPU host are served.
package gradio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type Client struct {
	http *resty.Client
}

func NewClient(baseUrl, proxy string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseUrl, "/")).
		SetTimeout(timeout)
	if proxy != "" {
		c.SetProxy(proxy)
	}
	return &Client{http: c}
}

// FileData is how Gradio refers to files in inputs and outputs.
type FileData struct {
	Path     string            `json:"path"`
	Url      string            `json:"url,omitempty"`
	OrigName string            `json:"orig_name,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

func newFileData(path string) FileData {
	return FileData{Path: path, Meta: map[string]string{"_type": "gradio.FileData"}}
}

// ParseFile reads a file output. Gradio returns either a bare path, a
// FileData object or, for video components, {"video": FileData}.
func ParseFile(raw json.RawMessage) (FileData, error) {
	var path string
	if err := json.Unmarshal(raw, &path); err == nil && path != "" {
		return FileData{Path: path}, nil
	}
	var wrapped struct {
		Video *FileData `json:"video"`
		Image *FileData `json:"image"`
		FileData
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return FileData{}, fmt.Errorf("unexpected file output %s: %w", string(raw), err)
	}
	switch {
	case wrapped.Video != nil:
		return *wrapped.Video, nil
	case wrapped.Image != nil:
		return *wrapped.Image, nil
	case wrapped.Path != "" || wrapped.Url != "":
		return wrapped.FileData, nil
	}
	return FileData{}, fmt.Errorf("unexpected file output %s", string(raw))
}

// Upload sends a local file and returns the reference to pass as input.
func (c *Client) Upload(ctx context.Context, localPath string) (FileData, error) {
	if _, err := os.Stat(localPath); err != nil {
		return FileData{}, apperrors.WrapWithDetail(apperrors.CodeFileNotFound, "文件不存在 File not found", localPath, err)
	}
	var paths []string
	resp, err := c.http.R().
		SetContext(ctx).
		SetFile("files", localPath).
		SetResult(&paths).
		ForceContentType("application/json").
		Post("/gradio_api/upload")
	if err = checkResponse(ctx, "upload", resp, err); err != nil {
		return FileData{}, err
	}
	if len(paths) == 0 {
		return FileData{}, apperrors.Newf(apperrors.CodeServiceFailed, "远程服务调用失败 Remote service failed", "upload returned no path")
	}
	fd := newFileData(paths[0])
	fd.OrigName = filepath.Base(localPath)
	return fd, nil
}

// Predict runs apiName with data and blocks until the event stream reports
// completion. It returns the output list.
func (c *Client) Predict(ctx context.Context, apiName string, data []any) ([]json.RawMessage, error) {
	name := strings.TrimPrefix(apiName, "/")

	var queued struct {
		EventId string `json:"event_id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"data": data}).
		SetResult(&queued).
		ForceContentType("application/json").
		Post("/gradio_api/call/" + name)
	if err = checkResponse(ctx, name, resp, err); err != nil {
		return nil, err
	}
	if queued.EventId == "" {
		return nil, apperrors.Newf(apperrors.CodeServiceFailed, "远程服务调用失败 Remote service failed", "%s: no event id", name)
	}

	resp, err = c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		Get("/gradio_api/call/" + name + "/" + queued.EventId)
	if err = checkResponse(ctx, name, resp, err); err != nil {
		return nil, err
	}
	return parseEventStream(name, resp.String())
}

// parseEventStream returns the data of the "complete" event.
func parseEventStream(name, body string) ([]json.RawMessage, error) {
	var event string
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				var out []json.RawMessage
				if err := json.Unmarshal([]byte(payload), &out); err != nil {
					return nil, apperrors.WrapWithDetail(apperrors.CodeServiceFailed, "远程服务返回格式错误 Unexpected service reply", name, err)
				}
				return out, nil
			case "error":
				return nil, apperrors.Newf(apperrors.CodeServiceFailed, "远程服务调用失败 Remote service failed", "%s: %s", name, payload)
			}
		}
	}
	return nil, apperrors.Newf(apperrors.CodeServiceFailed, "远程服务调用失败 Remote service failed", "%s: stream ended without result", name)
}

// Download saves an output file to dst.
func (c *Client) Download(ctx context.Context, file FileData, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", dst, err)
	}
	url := file.Url
	if url == "" {
		url = "/gradio_api/file=" + file.Path
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetOutput(dst).
		Get(url)
	if err = checkResponse(ctx, "download", resp, err); err != nil {
		_ = os.Remove(dst)
		return err
	}
	log.GetLogger().Debug("gradio 文件已下载 File downloaded", zap.String("url", url), zap.String("dst", dst))
	return nil
}

// checkResponse maps transport and HTTP failures to service error codes.
func checkResponse(ctx context.Context, op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return apperrors.WrapWithDetail(apperrors.CodeServiceTimeout, "远程服务超时 Remote service timeout", op, err)
		}
		return apperrors.WrapWithDetail(apperrors.CodeServiceFailed, "远程服务调用失败 Remote service failed", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	detail := fmt.Sprintf("%s: %d %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
	switch resp.StatusCode() {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return apperrors.Newf(apperrors.CodeServiceBusy, "远程服务忙 Remote service busy", "%s", detail)
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return apperrors.Newf(apperrors.CodeServiceTimeout, "远程服务超时 Remote service timeout", "%s", detail)
	default:
		return apperrors.Newf(apperrors.CodeServiceFailed, "远程服务调用失败 Remote service failed", "%s", detail)
	}
}

// CheckResponse is shared by the other resty based clients.
func CheckResponse(ctx context.Context, op string, resp *resty.Response, err error) error {
	return checkResponse(ctx, op, resp, err)
}
