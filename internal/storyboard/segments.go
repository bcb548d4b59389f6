package storyboard

import (
	"fmt"
	"math"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"

	"go.uber.org/zap"
)

const (
	// SeedFigure as a SeedRef means the segment starts from the shot figure.
	SeedFigure = 0

	// DurationEpsilon is the tolerance for comparing clip and shot lengths.
	DurationEpsilon = 0.01

	PolicyWarn = "warn"
	PolicyFail = "fail"
)

// Segment is one planned sub-clip of a shot. SeedRef is the Index of the
// segment whose last frame seeds this one, or SeedFigure.
type Segment struct {
	Index    int
	Duration float64
	Frames   int
	Prompt   string
	SeedRef  int
}

func millis(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

// SegmentCount is ceil(duration/max), at least 1.
func SegmentCount(duration, max float64) int {
	total, limit := millis(duration), millis(max)
	if limit <= 0 || total <= 0 {
		return 1
	}
	return int((total + limit - 1) / limit)
}

// Partition splits duration into n parts on a millisecond grid. The first
// total%n parts get one extra millisecond, so the parts sum exactly to the
// rounded duration and differ by at most 1ms.
func Partition(duration float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	total := millis(duration)
	base, rem := total/int64(n), total%int64(n)
	parts := make([]float64, n)
	for i := range parts {
		ms := base
		if int64(i) < rem {
			ms++
		}
		parts[i] = float64(ms) / 1000
	}
	return parts
}

func FrameCount(seconds float64, fps int) int {
	return int(math.Round(seconds * float64(fps)))
}

// PlanSegments lays out the chained segments of shot. A step without its
// own prompt reuses the closest earlier one; the first step falls back to
// the lowest provided.
func PlanSegments(shot *types.Shot, maxSeconds float64, fps int) ([]Segment, error) {
	steps := shot.PromptVideo.Steps()
	if len(steps) == 0 {
		return nil, apperrors.Newf(apperrors.CodeValidation, "缺少视频提示词 Missing video prompt", "shot %d", shot.ID)
	}
	if shot.Duration <= 0 {
		return nil, apperrors.Newf(apperrors.CodeValidation, "分镜时长无效 Invalid shot duration", "shot %d: %v", shot.ID, shot.Duration)
	}

	n := SegmentCount(shot.Duration, maxSeconds)
	parts := Partition(shot.Duration, n)
	segments := make([]Segment, n)
	for i := range segments {
		k := i + 1
		seed := SeedFigure
		if k > 1 {
			seed = k - 1
		}
		segments[i] = Segment{
			Index:    k,
			Duration: parts[i],
			Frames:   FrameCount(parts[i], fps),
			Prompt:   promptFor(steps, k),
			SeedRef:  seed,
		}
	}
	return segments, nil
}

func promptFor(steps []types.PromptStep, k int) string {
	text := steps[0].Text
	for _, step := range steps {
		if step.Index > k {
			break
		}
		text = step.Text
	}
	return text
}

// StepDrift returns how far the prompt author's step durations are from the
// shot duration. ok is false when no step carries a duration.
func StepDrift(shot *types.Shot) (drift float64, ok bool) {
	sum := 0.0
	for _, step := range shot.PromptVideo.Steps() {
		if step.Duration > 0 {
			ok = true
		}
		sum += step.Duration
	}
	return sum - shot.Duration, ok
}

// CheckConsistency compares the authored step durations with the shot
// duration. Under the warn policy a mismatch is only logged and the planned
// partition is used; under fail it is returned as a consistency error.
func CheckConsistency(shot *types.Shot, policy string) error {
	drift, ok := StepDrift(shot)
	if !ok || math.Abs(drift) <= DurationEpsilon {
		return nil
	}
	err := apperrors.Newf(apperrors.CodeConsistency, "分段时长不一致 Segment durations inconsistent",
		"shot %d: steps sum to %.3fs, shot is %.3fs", shot.ID, shot.Duration+drift, shot.Duration)
	if policy == PolicyFail {
		return err
	}
	log.GetLogger().Warn("提示词分段时长与分镜时长不一致，按分镜时长重新划分 Step durations disagree with shot duration",
		zap.Int("shot", shot.ID), zap.Float64("drift", drift))
	return nil
}

// SegmentsSum totals planned segment lengths.
func SegmentsSum(segments []Segment) float64 {
	sum := 0.0
	for _, s := range segments {
		sum += s.Duration
	}
	return sum
}

func (s Segment) String() string {
	return fmt.Sprintf("segment %d (%.3fs, %d frames, seed %d)", s.Index, s.Duration, s.Frames, s.SeedRef)
}
