// Package videogen animates a seed image on the image-to-video Gradio app.
package videogen

import (
	"context"
	"path/filepath"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/gradio"
	"storyboard-ai/pkg/util"
	"time"

	"go.uber.org/zap"
)

// Client implements types.VideoGenerator
type Client struct {
	gradio    *gradio.Client
	Api       string
	OutputDir string
}

var now = time.Now

func NewClient(baseUrl, api, proxy, outputDir string, timeout time.Duration) *Client {
	return &Client{
		gradio:    gradio.NewClient(baseUrl, proxy, timeout),
		Api:       api,
		OutputDir: outputDir,
	}
}

// GenerateVideo uploads the seed image and asks for frameCount frames.
func (c *Client) GenerateVideo(ctx context.Context, imagePath, prompt string, frameCount int) (string, error) {
	if frameCount <= 0 {
		return "", apperrors.Newf(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", "frame count %d", frameCount)
	}
	seed, err := c.gradio.Upload(ctx, imagePath)
	if err != nil {
		return "", err
	}

	out, err := c.gradio.Predict(ctx, c.Api, []any{seed, prompt, frameCount})
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", apperrors.Newf(apperrors.CodeServiceFailed, "远程服务返回为空 Empty service reply", "%s", c.Api)
	}
	file, err := gradio.ParseFile(out[0])
	if err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeServiceFailed, "远程服务返回格式错误 Unexpected service reply", c.Api, err)
	}

	dst := filepath.Join(c.OutputDir, "clip_"+util.Timestamp(now())+".mp4")
	if err = c.gradio.Download(ctx, file, dst); err != nil {
		return "", err
	}
	log.GetLogger().Info("视频片段生成完成 Clip generated",
		zap.String("seed", imagePath), zap.Int("frames", frameCount), zap.String("path", dst))
	return dst, nil
}
