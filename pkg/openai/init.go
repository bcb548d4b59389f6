package openai

import (
	"net/http"
	"net/url"
	"storyboard-ai/log"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client implements types.ChatCompleter
type Client struct {
	client      *openai.Client
	Model       string
	Temperature float32
	MaxTokens   int
}

func NewClient(baseUrl, apiKey, proxyAddr string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseUrl != "" {
		cfg.BaseURL = baseUrl
	}

	transport := &http.Transport{}
	if proxyAddr != "" {
		proxyUrl, err := url.Parse(proxyAddr)
		if err != nil {
			log.GetLogger().Warn("代理地址无效，已忽略 Invalid proxy ignored", zap.String("proxy", proxyAddr), zap.Error(err))
		} else {
			transport.Proxy = http.ProxyURL(proxyUrl)
		}
	}

	// 不设置整体超时，由调用方的 context 控制
	cfg.HTTPClient = &http.Client{
		Transport: transport,
	}

	client := openai.NewClientWithConfig(cfg)
	return &Client{client: client, Model: openai.GPT4oMini}
}

// WithModel sets the sampling parameters used by ChatCompletion.
func (c *Client) WithModel(model string, temperature float32, maxTokens int) *Client {
	if model != "" {
		c.Model = model
	}
	c.Temperature = temperature
	c.MaxTokens = maxTokens
	return c
}
