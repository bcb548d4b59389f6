package service

import (
	"path/filepath"
	"strings"

	"storyboard-ai/config"
	"storyboard-ai/internal/appdirs"
)

var appDirsResolver = appdirs.Resolve

func resolveRunDir(runID string) (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	return appdirs.RunDirFor(dirs, runID)
}

// resolveSaveDir picks where figures and clips go: the request override,
// then app.save_dir, then the default under the output dir.
func resolveSaveDir(override string) (string, error) {
	if dir := strings.TrimSpace(override); dir != "" {
		return filepath.Clean(dir), nil
	}
	if dir := strings.TrimSpace(config.Conf.App.SaveDir); dir != "" {
		return filepath.Clean(dir), nil
	}
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	return appdirs.SaveRootFor(dirs), nil
}

func resolveCacheDirPath(pathItems ...string) (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	cacheRoot := strings.TrimSpace(dirs.CacheDir)
	if cacheRoot == "" {
		cacheRoot = "cache"
	}
	return filepath.Join(append([]string{cacheRoot}, pathItems...)...), nil
}

// artifactBase is the storyboard file name without extension; assembled
// outputs are named after it.
func artifactBase(storyboardPath string) string {
	base := filepath.Base(storyboardPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
