package service

import (
	"path/filepath"
	"testing"

	"storyboard-ai/config"
	"storyboard-ai/internal/appdirs"
)

func useAppDirs(t *testing.T, paths appdirs.Paths) {
	t.Helper()
	originalResolver := appDirsResolver
	t.Cleanup(func() {
		appDirsResolver = originalResolver
	})
	appDirsResolver = func() (appdirs.Paths, error) {
		return paths, nil
	}
}

func TestResolveRunDirUsesOutputDir(t *testing.T) {
	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "output-root")
	useAppDirs(t, appdirs.Paths{OutputDir: outputDir, CacheDir: filepath.Join(tempDir, "cache-root")})

	got, err := resolveRunDir("run-001")
	if err != nil {
		t.Fatalf("resolveRunDir() returned error: %v", err)
	}

	want := filepath.Join(outputDir, "runs", "run-001")
	if got != want {
		t.Fatalf("resolveRunDir() = %q, want %q", got, want)
	}

	if _, err := resolveRunDir("  "); err == nil {
		t.Fatal("resolveRunDir() accepted an empty run id")
	}
	if _, err := resolveRunDir("../escape"); err == nil {
		t.Fatal("resolveRunDir() accepted a run id outside the run root")
	}
}

func TestResolveSaveDirPrecedence(t *testing.T) {
	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "output-root")
	useAppDirs(t, appdirs.Paths{OutputDir: outputDir})

	oldConf := config.Conf
	t.Cleanup(func() { config.Conf = oldConf })

	config.Conf.App.SaveDir = ""
	got, err := resolveSaveDir("")
	if err != nil {
		t.Fatalf("resolveSaveDir() returned error: %v", err)
	}
	if want := filepath.Join(outputDir, "storyboards"); got != want {
		t.Fatalf("resolveSaveDir() = %q, want %q", got, want)
	}

	config.Conf.App.SaveDir = filepath.Join(tempDir, "configured")
	if got, _ = resolveSaveDir(""); got != config.Conf.App.SaveDir {
		t.Fatalf("resolveSaveDir() = %q, want configured dir", got)
	}

	override := filepath.Join(tempDir, "override")
	if got, _ = resolveSaveDir(override + "/"); got != override {
		t.Fatalf("resolveSaveDir() = %q, want %q", got, override)
	}
}

func TestResolveCacheDirPathFallsBack(t *testing.T) {
	useAppDirs(t, appdirs.Paths{})

	got, err := resolveCacheDirPath("generated")
	if err != nil {
		t.Fatalf("resolveCacheDirPath() returned error: %v", err)
	}
	if want := filepath.Join("cache", "generated"); got != want {
		t.Fatalf("resolveCacheDirPath() = %q, want %q", got, want)
	}
}

func TestArtifactBase(t *testing.T) {
	if got := artifactBase(filepath.Join("data", "ep1.storyboard.json")); got != "ep1.storyboard" {
		t.Fatalf("artifactBase() = %q", got)
	}
}
