package appdirs

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	RunRootName  = "runs"
	SaveRootName = "storyboards"
	dbFileName   = "storyboard.db"
)

// RunRootFor holds one directory per run with its archived report.
func RunRootFor(paths Paths) string {
	return filepath.Join(normalizeOutputDir(paths.OutputDir), RunRootName)
}

// RunDirFor is the archive directory of runID. Run ids arrive over the API
// and from the queue, so anything that is not a single path element is
// refused.
func RunDirFor(paths Paths, runID string) (string, error) {
	if err := validateRunID(runID); err != nil {
		return "", err
	}
	return filepath.Join(RunRootFor(paths), runID), nil
}

func validateRunID(runID string) error {
	trimmed := strings.TrimSpace(runID)
	switch {
	case trimmed == "":
		return fmt.Errorf("run id is empty")
	case trimmed != runID, trimmed == ".", trimmed == "..":
		return fmt.Errorf("invalid run id %q", runID)
	case strings.ContainsAny(runID, `/\:`):
		return fmt.Errorf("run id %q contains a path separator", runID)
	}
	return nil
}

// SaveRootFor is the default save dir for generated figures and clips when
// the config leaves app.save_dir empty.
func SaveRootFor(paths Paths) string {
	return filepath.Join(normalizeOutputDir(paths.OutputDir), SaveRootName)
}

func DBPathFor(paths Paths) string {
	return filepath.Join(normalizeCacheDir(paths.CacheDir), dbFileName)
}

func ResolveSaveRoot() (string, error) {
	paths, err := Resolve()
	if err != nil {
		return "", err
	}
	return SaveRootFor(paths), nil
}

func normalizeOutputDir(outputDir string) string {
	cleaned := strings.TrimSpace(outputDir)
	if cleaned == "" {
		return "."
	}
	return filepath.Clean(cleaned)
}

func normalizeCacheDir(cacheDir string) string {
	cleaned := strings.TrimSpace(cacheDir)
	if cleaned == "" {
		return "cache"
	}
	return filepath.Clean(cleaned)
}
