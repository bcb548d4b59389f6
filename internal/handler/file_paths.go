package handler

import (
	"os"
	"path/filepath"
	"strings"

	"storyboard-ai/config"
	"storyboard-ai/internal/appdirs"
)

var appDirsResolver = appdirs.Resolve

type downloadRoot struct {
	alias string
	dirs  []string
}

// saveRootCandidates lists where generated figures, clips and assembled
// videos may live: the configured save dir first, then the default.
func saveRootCandidates() []string {
	candidates := make([]string, 0, 3)
	candidates = append(candidates, config.Conf.App.SaveDir)
	if dirs, err := appDirsResolver(); err == nil {
		candidates = append(candidates, appdirs.SaveRootFor(dirs))
	}
	candidates = append(candidates, appdirs.SaveRootName)
	return uniquePaths(candidates...)
}

func runRootCandidates() []string {
	candidates := make([]string, 0, 2)
	if dirs, err := appDirsResolver(); err == nil {
		candidates = append(candidates, appdirs.RunRootFor(dirs))
	}
	candidates = append(candidates, appdirs.RunRootName)
	return uniquePaths(candidates...)
}

// resolveDownloadPath maps a request path such as
// "storyboards/story_final.mp4" or "runs/<id>/report.yaml" to a file under
// one of the known roots. Paths without a known prefix are tried against
// every root.
func resolveDownloadPath(requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	requested = strings.TrimPrefix(requested, string(filepath.Separator))
	requested = strings.TrimPrefix(requested, "/")
	if hasParentTraversal(requested) {
		return "", false
	}
	requested = filepath.Clean(requested)
	if requested == "." {
		requested = ""
	}
	requested = filepath.ToSlash(requested)

	roots := []downloadRoot{
		{alias: appdirs.SaveRootName, dirs: saveRootCandidates()},
		{alias: appdirs.RunRootName, dirs: runRootCandidates()},
	}

	matchedAlias := ""
	relativePath := requested
	for _, root := range roots {
		prefix := root.alias + "/"
		if requested == root.alias {
			matchedAlias = root.alias
			relativePath = ""
			break
		}
		if strings.HasPrefix(requested, prefix) {
			matchedAlias = root.alias
			relativePath = strings.TrimPrefix(requested, prefix)
			break
		}
	}

	var fallback string
	for _, root := range roots {
		if matchedAlias != "" && root.alias != matchedAlias {
			continue
		}

		pathToJoin := requested
		if matchedAlias == root.alias {
			pathToJoin = relativePath
		}
		pathToJoin = filepath.FromSlash(pathToJoin)

		for _, rootDir := range root.dirs {
			candidate := filepath.Clean(filepath.Join(rootDir, pathToJoin))
			if !isPathWithinRoot(rootDir, candidate) {
				continue
			}
			if fallback == "" {
				fallback = candidate
			}
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}

	if fallback == "" {
		return "", false
	}
	return fallback, true
}

func uniquePaths(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	paths := make([]string, 0, len(values))
	for _, value := range values {
		cleaned := strings.TrimSpace(value)
		if cleaned == "" {
			continue
		}
		cleaned = filepath.Clean(cleaned)
		if _, exists := seen[cleaned]; exists {
			continue
		}
		seen[cleaned] = struct{}{}
		paths = append(paths, cleaned)
	}
	return paths
}

func isPathWithinRoot(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hasParentTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	parts := strings.Split(normalized, "/")
	for _, part := range parts {
		if part == ".." {
			return true
		}
	}
	return false
}
