package subtitle

import (
	"context"
	"fmt"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	"storyboard-ai/pkg/util"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.uber.org/zap"
)

// Similarity is the Levenshtein ratio of two cue texts, 1 for identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// CheckRevision reports why revised cannot replace original, or "" when it
// can. The timeline must be untouched and every cue text must stay close to
// what was recognised.
func CheckRevision(original, revised []Cue, minSimilarity float64) string {
	if len(original) != len(revised) {
		return fmt.Sprintf("cue count changed from %d to %d", len(original), len(revised))
	}
	for i := range original {
		o, r := original[i], revised[i]
		if o.Index != r.Index || o.Start != r.Start || o.End != r.End {
			return fmt.Sprintf("cue %d timing changed", o.Index)
		}
		if strings.TrimSpace(r.Text) == "" && strings.TrimSpace(o.Text) != "" {
			return fmt.Sprintf("cue %d text removed", o.Index)
		}
		if s := Similarity(o.Text, r.Text); s < minSimilarity {
			return fmt.Sprintf("cue %d similarity %.2f below %.2f", o.Index, s, minSimilarity)
		}
	}
	return ""
}

type ProofreadResult struct {
	Cues     []Cue
	Accepted bool
	Attempts int
	Reason   string
}

// Proofreader asks a chat model to correct recognised subtitle text against
// the narration script.
type Proofreader struct {
	Chat          types.ChatCompleter
	MinSimilarity float64
	MaxAttempts   int
}

// Proofread returns the corrected cues, or the original cues with
// Accepted=false when no reply passed CheckRevision. Chat errors are
// returned as is.
func (p *Proofreader) Proofread(ctx context.Context, script string, cues []Cue) (ProofreadResult, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	result := ProofreadResult{Cues: cues}
	if len(cues) == 0 {
		result.Reason = "no cues"
		return result, nil
	}

	userPrompt := fmt.Sprintf(types.SubtitleProofreadUser, script, Format(cues))
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		reply, err := p.Chat.ChatCompletion(ctx, types.SubtitleProofreadSystem, userPrompt)
		if err != nil {
			return result, err
		}

		revised, err := Parse(strings.NewReader(util.StripCodeFence(reply)))
		if err != nil {
			result.Reason = err.Error()
		} else if reason := CheckRevision(cues, revised, p.MinSimilarity); reason != "" {
			result.Reason = reason
		} else {
			result.Cues = revised
			result.Accepted = true
			result.Reason = ""
			return result, nil
		}
		log.GetLogger().Warn("字幕校对结果未通过检查 Proofread reply rejected",
			zap.Int("attempt", attempt), zap.String("reason", result.Reason))
	}
	return result, nil
}
