package service

import (
	"context"
	"encoding/json"
	"fmt"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"storyboard-ai/pkg/util"
	"strings"

	"go.uber.org/zap"
)

var promptReplyFields = []string{
	types.KeyText, types.KeyAudio, types.KeyDuration, types.KeyChapter, types.KeyDescription,
	types.KeyPromptFigure, types.KeyPromptVideo,
}

// LLMPromptGenerator implements types.PromptGenerator on a chat model.
type LLMPromptGenerator struct {
	Chat              types.ChatCompleter
	MaxSegmentSeconds float64
	MaxAttempts       int
}

func NewLLMPromptGenerator(chat types.ChatCompleter, maxSegmentSeconds float64, maxAttempts int) *LLMPromptGenerator {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &LLMPromptGenerator{Chat: chat, MaxSegmentSeconds: maxSegmentSeconds, MaxAttempts: maxAttempts}
}

type promptShotInput struct {
	Text        string  `json:"text"`
	Audio       string  `json:"audio"`
	Duration    float64 `json:"duration"`
	Chapter     string  `json:"chapter"`
	Description string  `json:"description"`
}

func (g *LLMPromptGenerator) GeneratePrompt(ctx context.Context, summary string, shot types.Shot) (types.Shot, error) {
	input, err := json.Marshal(promptShotInput{
		Text:        shot.Text,
		Audio:       shot.Audio,
		Duration:    shot.Duration,
		Chapter:     shot.Chapter,
		Description: shot.Description,
	})
	if err != nil {
		return types.Shot{}, err
	}
	limit := g.MaxSegmentSeconds
	systemPrompt := fmt.Sprintf(types.StoryboardPromptSystem, limit, limit, limit)
	userPrompt := fmt.Sprintf(types.StoryboardPromptUser, summary, string(input))

	var lastErr error
	for attempt := 1; attempt <= g.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return types.Shot{}, apperrors.Wrap(apperrors.CodeServiceTimeout, "大模型请求超时 LLM request timeout", ctx.Err())
		}
		reply, err := g.Chat.ChatCompletion(ctx, systemPrompt, userPrompt)
		if err == nil {
			var produced types.Shot
			produced, err = parsePromptReply(reply)
			if err == nil {
				produced.ID = shot.ID
				return produced, nil
			}
		}
		lastErr = err
		log.GetLogger().Warn("生成提示词失败，重试 Prompt generation attempt failed",
			zap.Int("shot", shot.ID), zap.Int("attempt", attempt), zap.Error(err))
	}
	return types.Shot{}, apperrors.WrapWithDetail(apperrors.CodeLLMInvalidReply, "大模型返回无效 Invalid LLM reply",
		fmt.Sprintf("shot %d after %d attempts", shot.ID, g.MaxAttempts), lastErr)
}

// parsePromptReply accepts a reply only when every expected field is there
// and the video prompt has at least one step.
func parsePromptReply(reply string) (types.Shot, error) {
	body := util.ExtractJsonFromText(reply)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return types.Shot{}, apperrors.Wrap(apperrors.CodeLLMInvalidReply, "大模型返回不是 JSON 对象 LLM reply is not a JSON object", err)
	}
	var missing []string
	for _, key := range promptReplyFields {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return types.Shot{}, apperrors.Newf(apperrors.CodeLLMInvalidReply, "大模型返回缺少字段 LLM reply misses fields", "%s", strings.Join(missing, ", "))
	}

	var shot types.Shot
	if err := json.Unmarshal([]byte(body), &shot); err != nil {
		return types.Shot{}, apperrors.Wrap(apperrors.CodeLLMInvalidReply, "大模型返回格式错误 LLM reply malformed", err)
	}
	return shot, checkGeneratedPrompt(shot)
}
