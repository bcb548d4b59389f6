// Package imagegen renders storyboard stills on the text-to-image Gradio app.
package imagegen

import (
	"context"
	"path/filepath"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/gradio"
	"storyboard-ai/pkg/util"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client implements types.FigureGenerator
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

func (c *Client) GenerateFigure(ctx context.Context, prompt string) (string, error) {
	out, err := c.gradio.Predict(ctx, c.Api, []any{prompt})
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

	ext := strings.ToLower(filepath.Ext(file.Path))
	if ext == "" {
		ext = ".png"
	}
	dst := filepath.Join(c.OutputDir, "figure_"+util.Timestamp(now())+ext)
	if err = c.gradio.Download(ctx, file, dst); err != nil {
		return "", err
	}
	log.GetLogger().Info("图片生成完成 Figure generated", zap.String("path", dst))
	return dst, nil
}
