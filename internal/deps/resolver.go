package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"storyboard-ai/internal/storage"
	"strings"
)

type DependencyTier string

const (
	DependencyTierMust     DependencyTier = "must"
	DependencyTierOptional DependencyTier = "optional"
)

type DependencyStatus string

const (
	DependencyStatusOK      DependencyStatus = "ok"
	DependencyStatusMissing DependencyStatus = "missing"
	DependencyStatusError   DependencyStatus = "error"
)

type DependencySource string

const (
	DependencySourceConfig   DependencySource = "config"
	DependencySourceLookPath DependencySource = "lookpath"
)

// DependencySpec is a binary the media pipeline shells out to.
// ConfiguredPath is what config or storage currently points at; a bare
// command name counts as not configured.
type DependencySpec struct {
	ID             string
	Command        string
	Tier           DependencyTier
	ConfiguredPath string
	Hint           string
}

type DependencyState struct {
	DependencySpec
	ResolvedPath string
	Status       DependencyStatus
	Source       DependencySource
	Error        string
}

func (s DependencyState) OK() bool {
	return s.Status == DependencyStatusOK
}

// PathResolver has its filesystem hooks as fields so tests can fake them.
type PathResolver struct {
	LookPath func(file string) (string, error)
	AbsPath  func(path string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

func NewPathResolver() PathResolver {
	return PathResolver{
		LookPath: exec.LookPath,
		AbsPath:  filepath.Abs,
		Stat:     os.Stat,
	}
}

// Resolve prefers the configured path and falls back to PATH lookup of the
// command name.
func (r PathResolver) Resolve(spec DependencySpec) DependencyState {
	state := DependencyState{DependencySpec: spec}

	configured := strings.TrimSpace(spec.ConfiguredPath)
	if configured == "" || configured == spec.Command {
		state.Source = DependencySourceLookPath
		path, err := r.LookPath(spec.Command)
		state.ResolvedPath = path
		state.setResult(err)
		return state
	}

	state.Source = DependencySourceConfig
	if path, err := r.LookPath(configured); err == nil {
		state.ResolvedPath = path
		state.setResult(nil)
		return state
	}
	abs, err := r.AbsPath(configured)
	if err != nil {
		state.ResolvedPath = configured
		state.setResult(err)
		return state
	}
	state.ResolvedPath = abs
	_, err = r.Stat(abs)
	state.setResult(err)
	return state
}

func (s *DependencyState) setResult(err error) {
	switch {
	case err == nil:
		s.Status = DependencyStatusOK
	case isMissingPathError(err):
		s.Status = DependencyStatusMissing
		s.Error = err.Error()
	default:
		s.Status = DependencyStatusError
		s.Error = err.Error()
	}
}

// BuildDependencyInventory lists the binaries used for concatenation,
// frame extraction, probing and muxing.
func BuildDependencyInventory() []DependencySpec {
	return []DependencySpec{
		{
			ID:             "ffmpeg",
			Command:        "ffmpeg",
			Tier:           DependencyTierMust,
			ConfiguredPath: storage.FfmpegPath,
			Hint:           "Required to concatenate segments, extract last frames, retime clips and mux the final video.",
		},
		{
			ID:             "ffprobe",
			Command:        "ffprobe",
			Tier:           DependencyTierMust,
			ConfiguredPath: storage.FfprobePath,
			Hint:           "Required to measure clip durations before retiming.",
		},
	}
}

func ResolveDependencyInventory() []DependencyState {
	specs := BuildDependencyInventory()
	states := make([]DependencyState, 0, len(specs))
	resolver := NewPathResolver()
	for _, spec := range specs {
		states = append(states, resolver.Resolve(spec))
	}
	return states
}

// ApplyResolvedPaths points storage at the resolved binaries and returns
// an error naming every required binary that is unusable.
func ApplyResolvedPaths(states []DependencyState) error {
	var missing []string
	for _, state := range states {
		if !state.OK() {
			if state.Tier == DependencyTierMust {
				missing = append(missing, state.ID)
			}
			continue
		}
		switch state.ID {
		case "ffmpeg":
			storage.FfmpegPath = state.ResolvedPath
		case "ffprobe":
			storage.FfprobePath = state.ResolvedPath
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required binaries unavailable: %s", strings.Join(missing, ", "))
	}
	return nil
}

func FormatDependencyReport(states []DependencyState) string {
	if len(states) == 0 {
		return "No dependencies to diagnose."
	}

	var b strings.Builder
	b.WriteString("Dependency status")
	for _, state := range states {
		path := state.ResolvedPath
		if path == "" {
			path = "unknown"
		}
		fmt.Fprintf(&b, "\n- %s [%s]: %s | path=%s | source=%s", state.ID, strings.ToUpper(string(state.Tier)), state.Status, path, state.Source)
		if state.Error != "" {
			fmt.Fprintf(&b, "\n  error: %s", state.Error)
		}
		if state.Hint != "" && !state.OK() {
			fmt.Fprintf(&b, "\n  hint: %s", state.Hint)
		}
	}
	return b.String()
}

func isMissingPathError(err error) bool {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "not found") || strings.Contains(message, "cannot find")
}
