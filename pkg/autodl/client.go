// Package autodl powers the rented GPU instance on and off through the
// AutoDL developer API.
package autodl

import (
	"context"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/gradio"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://www.autodl.com/api/v1/dev"
	StatusSuccess  = "Success"
)

// Client implements types.InstanceManager
type Client struct {
	http *resty.Client
}

type powerRequest struct {
	InstanceUuid string `json:"instance_uuid"`
}

type powerResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func NewClient(baseUrl, token string) *Client {
	if baseUrl == "" {
		baseUrl = DefaultBaseURL
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseUrl, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Authorization", token).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c}
}

func (c *Client) Start(ctx context.Context, instanceID string) (string, error) {
	return c.power(ctx, "/instance/pro/power_on", instanceID)
}

func (c *Client) Stop(ctx context.Context, instanceID string) (string, error) {
	return c.power(ctx, "/instance/pro/power_off", instanceID)
}

// power returns the provider code. A reply other than Success is an error
// carrying the provider message.
func (c *Client) power(ctx context.Context, path, instanceID string) (string, error) {
	var result powerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(powerRequest{InstanceUuid: instanceID}).
		SetResult(&result).
		ForceContentType("application/json").
		Post(path)
	if err = gradio.CheckResponse(ctx, path, resp, err); err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeInstanceLifecycle, "实例开关机失败 Instance lifecycle call failed", instanceID, err)
	}

	log.GetLogger().Info("AutoDL 实例操作 Instance power call",
		zap.String("path", path), zap.String("instance", instanceID), zap.String("code", result.Code), zap.String("msg", result.Msg))
	if result.Code != StatusSuccess {
		return result.Code, apperrors.Newf(apperrors.CodeInstanceLifecycle, "实例开关机失败 Instance lifecycle call failed", "%s %s: %s %s", path, instanceID, result.Code, result.Msg)
	}
	return result.Code, nil
}
