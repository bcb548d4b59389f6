package storyboard

import (
	"storyboard-ai/internal/types"

	"github.com/samber/lo"
)

// ShotPlan is the ordered stage list one shot needs this run.
type ShotPlan struct {
	Shot   int           `json:"shot"`
	Stages []types.Stage `json:"stages"`
}

// RunPlan holds a ShotPlan for every shot, in storyboard order.
type RunPlan struct {
	Shots []ShotPlan `json:"shots"`
}

// Plan decides which generation stages each shot needs. It refuses to plan
// a storyboard that does not validate. It never touches the storyboard.
func Plan(sb *types.Storyboard) (RunPlan, error) {
	if err := Validate(sb); err != nil {
		return RunPlan{}, err
	}
	plan := RunPlan{Shots: make([]ShotPlan, len(sb.Shots))}
	for i := range sb.Shots {
		plan.Shots[i] = ShotPlan{Shot: i, Stages: StagesFor(&sb.Shots[i])}
	}
	return plan, nil
}

// StagesFor returns the minimal stage list of shot. An upstream stage that
// is pending drags every downstream stage with it.
func StagesFor(shot *types.Shot) []types.Stage {
	switch {
	case shot.PromptPending:
		return []types.Stage{types.StagePrompt, types.StageFigure, types.StageVideo}
	case shot.FigurePending:
		return []types.Stage{types.StageFigure, types.StageVideo}
	case shot.VideoPending:
		return []types.Stage{types.StageVideo}
	default:
		return []types.Stage{}
	}
}

// Counts returns how many shots need each stage.
func (p RunPlan) Counts() map[types.Stage]int {
	counts := make(map[types.Stage]int, len(types.GenerationStages))
	for _, stage := range types.GenerationStages {
		counts[stage] = lo.CountBy(p.Shots, func(sp ShotPlan) bool {
			return lo.Contains(sp.Stages, stage)
		})
	}
	return counts
}

func (p RunPlan) Empty() bool {
	return lo.EveryBy(p.Shots, func(sp ShotPlan) bool { return len(sp.Stages) == 0 })
}

// Needs lists the shots whose plan contains stage.
func (p RunPlan) Needs(stage types.Stage) []int {
	return lo.FilterMap(p.Shots, func(sp ShotPlan, _ int) (int, bool) {
		return sp.Shot, lo.Contains(sp.Stages, stage)
	})
}

// Ready reports whether stage may run for shot right now: the stage is
// pending and nothing upstream is.
func Ready(shot *types.Shot, stage types.Stage) bool {
	switch stage {
	case types.StagePrompt:
		return shot.PromptPending
	case types.StageFigure:
		return !shot.PromptPending && shot.FigurePending
	case types.StageVideo:
		return !shot.PromptPending && !shot.FigurePending && shot.VideoPending
	case types.StageSubtitle:
		return shot.SubtitlePending || shot.SubtitlePath == ""
	default:
		return false
	}
}

// Advance applies a stage result to shot and returns the new record. Only a
// successful result for a stage that was ready changes anything; the input
// shot is never modified.
func Advance(shot types.Shot, result types.StageResult) types.Shot {
	next := shot.Clone()
	if result.Status != types.StageDone || !Ready(&shot, result.Stage) {
		return next
	}

	produced := result.Shot.Clone()
	switch result.Stage {
	case types.StagePrompt:
		if produced.Description != "" {
			next.Description = produced.Description
		}
		next.PromptFigure = produced.PromptFigure
		next.PromptVideo = produced.PromptVideo
		next.PromptPending = false
		next.FigurePending = true
		next.VideoPending = true
	case types.StageFigure:
		next.Figure = produced.Figure
		next.FigurePending = false
		next.VideoPending = true
	case types.StageVideo:
		next.Video = produced.Video
		next.VideoPending = false
	case types.StageSubtitle:
		next.SubtitlePath = produced.SubtitlePath
		next.SubtitlePending = false
	}
	return next
}

// Consistent reports whether the stage flags of shot respect the
// dependency order.
func Consistent(shot *types.Shot) bool {
	if !shot.FigurePending && shot.PromptPending {
		return false
	}
	if !shot.VideoPending && shot.FigurePending {
		return false
	}
	return true
}
