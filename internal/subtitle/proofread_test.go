package subtitle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storyboard-ai/internal/mocks"
	"storyboard-ai/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var recognised = []Cue{
	{Index: 1, Start: 0, End: ms(2240), Text: "大家好 欢迎收看本期节目"},
	{Index: 2, Start: ms(2240), End: ms(4360), Text: "普通人计熟悉陌生的世界国际机场"},
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Greater(t, Similarity("普通人计熟悉陌生的世界", "普通人既熟悉又陌生的世界"), 0.7)
	assert.Less(t, Similarity("完全不同", "totally different"), 0.3)
}

func TestCheckRevision(t *testing.T) {
	good := []Cue{recognised[0], {Index: 2, Start: ms(2240), End: ms(4360), Text: "普通人既熟悉又陌生的世界——国际机场"}}
	assert.Empty(t, CheckRevision(recognised, good, 0.5))

	assert.Contains(t, CheckRevision(recognised, good[:1], 0.5), "cue count")

	shifted := []Cue{recognised[0], {Index: 2, Start: ms(2300), End: ms(4360), Text: good[1].Text}}
	assert.Contains(t, CheckRevision(recognised, shifted, 0.5), "timing")

	rewritten := []Cue{recognised[0], {Index: 2, Start: ms(2240), End: ms(4360), Text: "something else entirely"}}
	assert.Contains(t, CheckRevision(recognised, rewritten, 0.5), "similarity")
}

func TestProofreadAcceptsValidReply(t *testing.T) {
	chat := new(mocks.MockChatCompleter)
	reply := "```srt\n" + Format([]Cue{recognised[0], {Index: 2, Start: ms(2240), End: ms(4360), Text: "普通人既熟悉又陌生的世界——国际机场"}}) + "```"
	chat.On("ChatCompletion", mock.Anything, types.SubtitleProofreadSystem, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "原始文稿") && strings.Contains(p, "00:00:02,240")
	})).Return(reply, nil).Once()

	p := &Proofreader{Chat: chat, MinSimilarity: 0.5, MaxAttempts: 3}
	res, err := p.Proofread(context.Background(), "原始文稿", recognised)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "普通人既熟悉又陌生的世界——国际机场", res.Cues[1].Text)
	chat.AssertExpectations(t)
}

func TestProofreadKeepsOriginalAfterBadReplies(t *testing.T) {
	chat := new(mocks.MockChatCompleter)
	chat.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything).Return("无法校对字幕", nil).Times(2)

	p := &Proofreader{Chat: chat, MinSimilarity: 0.5, MaxAttempts: 2}
	res, err := p.Proofread(context.Background(), "原始文稿", recognised)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, recognised, res.Cues)
	assert.NotEmpty(t, res.Reason)
	chat.AssertExpectations(t)
}

func TestProofreadReturnsChatError(t *testing.T) {
	chat := new(mocks.MockChatCompleter)
	chat.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection reset")).Once()

	p := &Proofreader{Chat: chat, MinSimilarity: 0.5, MaxAttempts: 3}
	_, err := p.Proofread(context.Background(), "原始文稿", recognised)
	require.Error(t, err)
	chat.AssertExpectations(t)
}
