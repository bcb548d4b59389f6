package deps

import (
	"storyboard-ai/config"
	"storyboard-ai/internal/storage"
	"storyboard-ai/log"

	"go.uber.org/zap"
)

// CheckDependency applies the configured binary paths, resolves ffmpeg and
// ffprobe and points storage at what was found.
func CheckDependency() error {
	storage.SetBinaryPaths(config.Conf.Paths.Ffmpeg, config.Conf.Paths.Ffprobe)
	states := ResolveDependencyInventory()
	for _, state := range states {
		if state.OK() {
			log.GetLogger().Info("依赖已就绪 Dependency ready", zap.String("id", state.ID), zap.String("path", state.ResolvedPath))
			continue
		}
		log.GetLogger().Warn("依赖不可用 Dependency unavailable",
			zap.String("id", state.ID),
			zap.String("status", string(state.Status)),
			zap.String("error", state.Error))
	}
	return ApplyResolvedPaths(states)
}
