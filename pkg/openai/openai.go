package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatCompletion sends one system and one user message and returns the
// streamed reply joined into a single string.
func (c *Client) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", mapError(ctx, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", mapError(ctx, err)
		}
		if len(resp.Choices) > 0 {
			sb.WriteString(resp.Choices[0].Delta.Content)
		}
	}

	reply := sb.String()
	log.GetLogger().Debug("LLM 返回 LLM reply", zap.String("model", c.Model), zap.Int("chars", len(reply)))
	if strings.TrimSpace(reply) == "" {
		return "", apperrors.New(apperrors.CodeLLMInvalidReply, "大模型返回为空 Empty LLM reply")
	}
	return reply, nil
}

func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.CodeServiceTimeout, "大模型请求超时 LLM request timeout", err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return apperrors.Wrap(apperrors.CodeServiceBusy, "大模型限流 LLM rate limited", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return apperrors.Wrap(apperrors.CodeServiceBusy, "大模型限流 LLM rate limited", err)
	}
	return apperrors.Wrap(apperrors.CodeServiceFailed, "大模型请求失败 LLM request failed", err)
}
