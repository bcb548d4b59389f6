package subtitle

import (
	"math"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	"time"

	"go.uber.org/zap"
)

// ShotSubtitle is the subtitle file of one shot and the authoritative
// shot length used to advance the timeline.
type ShotSubtitle struct {
	Shot     int
	Path     string
	Duration float64
}

// SkippedShot is a shot that contributed no cues.
type SkippedShot struct {
	Shot   int    `json:"shot"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type Merged struct {
	Cues    []Cue
	Skipped []SkippedShot
	// Length is the sum of all shot durations.
	Length time.Duration
}

func (m Merged) SRT() string {
	return Format(m.Cues)
}

func seconds(d float64) time.Duration {
	return time.Duration(math.Round(d*1000)) * time.Millisecond
}

// Merge shifts each shot's cues by the summed duration of the shots before
// it and renumbers them from 1 across the whole list. The offset moves on
// after a shot is processed, whether or not its file could be read.
func Merge(inputs []ShotSubtitle) Merged {
	var (
		merged Merged
		offset time.Duration
		next   = 1
	)
	for _, in := range inputs {
		cues, reason := readShot(in.Path)
		if reason != "" {
			merged.Skipped = append(merged.Skipped, SkippedShot{Shot: in.Shot, Path: in.Path, Reason: reason})
			log.GetLogger().Warn("分镜字幕不可用，仅推进时间轴 Shot subtitle skipped",
				zap.Int("shot", in.Shot), zap.String("path", in.Path), zap.String("reason", reason))
		}
		for _, c := range cues {
			merged.Cues = append(merged.Cues, Cue{
				Index: next,
				Start: c.Start + offset,
				End:   c.End + offset,
				Text:  c.Text,
			})
			next++
		}
		offset += seconds(in.Duration)
	}
	merged.Length = offset
	return merged
}

func readShot(path string) ([]Cue, string) {
	if path == "" {
		return nil, "no subtitle file"
	}
	cues, err := ParseFile(path)
	if err != nil {
		return nil, err.Error()
	}
	return cues, ""
}

// MergeStoryboard merges the per-shot subtitle files of sb in storyboard
// order.
func MergeStoryboard(sb *types.Storyboard) Merged {
	inputs := make([]ShotSubtitle, len(sb.Shots))
	for i, shot := range sb.Shots {
		inputs[i] = ShotSubtitle{
			Shot:     i,
			Path:     storyboard.ResolvePath(sb, shot.SubtitlePath),
			Duration: shot.Duration,
		}
	}
	return Merge(inputs)
}
