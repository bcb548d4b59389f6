package deps

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"storyboard-ai/internal/storage"

	"github.com/shirou/gopsutil/v3/disk"
)

func notFoundErr(command string) error {
	return &exec.Error{Name: command, Err: exec.ErrNotFound}
}

func TestPathResolverResolvePrefersConfiguredPath(t *testing.T) {
	binPath := filepath.Join(t.TempDir(), "ffmpeg-custom")
	if err := os.WriteFile(binPath, []byte("ffmpeg"), 0o755); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		return "", notFoundErr(file)
	}

	state := resolver.Resolve(DependencySpec{ID: "ffmpeg", Command: "ffmpeg", ConfiguredPath: binPath})

	if state.Status != DependencyStatusOK {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusOK)
	}
	if state.Source != DependencySourceConfig {
		t.Fatalf("state.Source = %q, want %q", state.Source, DependencySourceConfig)
	}
	if state.ResolvedPath != binPath {
		t.Fatalf("state.ResolvedPath = %q, want %q", state.ResolvedPath, binPath)
	}
}

func TestPathResolverBareCommandUsesLookPath(t *testing.T) {
	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		if file != "ffprobe" {
			t.Fatalf("LookPath() received %q, want %q", file, "ffprobe")
		}
		return "/mock/bin/ffprobe", nil
	}

	state := resolver.Resolve(DependencySpec{ID: "ffprobe", Command: "ffprobe", ConfiguredPath: "ffprobe"})

	if state.Source != DependencySourceLookPath || !state.OK() {
		t.Fatalf("state = %+v, want ok via lookpath", state)
	}
	if state.ResolvedPath != "/mock/bin/ffprobe" {
		t.Fatalf("state.ResolvedPath = %q", state.ResolvedPath)
	}
}

func TestPathResolverReportsMissing(t *testing.T) {
	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		return "", notFoundErr(file)
	}

	state := resolver.Resolve(DependencySpec{ID: "ffmpeg", Command: "ffmpeg"})
	if state.Status != DependencyStatusMissing {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusMissing)
	}
	if state.Error == "" {
		t.Fatalf("state.Error should not be empty")
	}

	missing := filepath.Join(t.TempDir(), "missing-ffmpeg")
	state = resolver.Resolve(DependencySpec{ID: "ffmpeg", Command: "ffmpeg", ConfiguredPath: missing})
	if state.Status != DependencyStatusMissing || state.Source != DependencySourceConfig {
		t.Fatalf("state = %+v, want missing via config", state)
	}
	if state.ResolvedPath != missing {
		t.Fatalf("state.ResolvedPath = %q, want %q", state.ResolvedPath, missing)
	}
}

func TestPathResolverStatFailureIsError(t *testing.T) {
	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		return "", notFoundErr(file)
	}
	resolver.AbsPath = func(path string) (string, error) {
		return "/mock/configured/path", nil
	}
	resolver.Stat = func(name string) (os.FileInfo, error) {
		return nil, errors.New("permission denied")
	}

	state := resolver.Resolve(DependencySpec{ID: "ffmpeg", Command: "ffmpeg", ConfiguredPath: "custom/ffmpeg"})

	if state.Status != DependencyStatusError {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusError)
	}
	if !strings.Contains(state.Error, "permission denied") {
		t.Fatalf("state.Error = %q, want to contain %q", state.Error, "permission denied")
	}
}

func TestApplyResolvedPaths(t *testing.T) {
	oldFfmpeg, oldFfprobe := storage.FfmpegPath, storage.FfprobePath
	t.Cleanup(func() {
		storage.FfmpegPath, storage.FfprobePath = oldFfmpeg, oldFfprobe
	})

	err := ApplyResolvedPaths([]DependencyState{
		{DependencySpec: DependencySpec{ID: "ffmpeg", Tier: DependencyTierMust}, Status: DependencyStatusOK, ResolvedPath: "/opt/ffmpeg"},
		{DependencySpec: DependencySpec{ID: "ffprobe", Tier: DependencyTierMust}, Status: DependencyStatusMissing},
	})
	if err == nil || !strings.Contains(err.Error(), "ffprobe") {
		t.Fatalf("ApplyResolvedPaths() error = %v, want ffprobe named", err)
	}
	if storage.FfmpegPath != "/opt/ffmpeg" {
		t.Fatalf("storage.FfmpegPath = %q", storage.FfmpegPath)
	}
	if storage.FfprobePath != oldFfprobe {
		t.Fatalf("storage.FfprobePath changed to %q", storage.FfprobePath)
	}
}

func TestFormatDependencyReportShowsHintsForProblems(t *testing.T) {
	report := FormatDependencyReport([]DependencyState{
		{DependencySpec: DependencySpec{ID: "ffmpeg", Tier: DependencyTierMust, Hint: "install it"}, Status: DependencyStatusMissing, Error: "not found", Source: DependencySourceLookPath},
		{DependencySpec: DependencySpec{ID: "ffprobe", Tier: DependencyTierMust, Hint: "hidden"}, Status: DependencyStatusOK, ResolvedPath: "/usr/bin/ffprobe", Source: DependencySourceLookPath},
	})

	for _, want := range []string{"- ffmpeg [MUST]: missing | path=unknown", "hint: install it", "- ffprobe [MUST]: ok | path=/usr/bin/ffprobe"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "hidden") {
		t.Fatalf("hint shown for healthy dependency:\n%s", report)
	}
	if FormatDependencyReport(nil) != "No dependencies to diagnose." {
		t.Fatalf("unexpected empty report")
	}
}

func TestCheckDisk(t *testing.T) {
	old := diskUsage
	t.Cleanup(func() { diskUsage = old })

	diskUsage = func(path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Total: 100 << 30, Free: 2 << 30, UsedPercent: 98}, nil
	}
	state := CheckDisk("/data")
	if !state.Low() {
		t.Fatalf("CheckDisk() = %+v, want low", state)
	}
	if report := FormatDiskReport(state); !strings.Contains(report, "2.0 GiB free of 100.0 GiB") || !strings.Contains(report, "warning") {
		t.Fatalf("FormatDiskReport() = %q", report)
	}

	diskUsage = func(path string) (*disk.UsageStat, error) { return nil, errors.New("no such volume") }
	state = CheckDisk("/nope")
	if state.Low() || !strings.Contains(FormatDiskReport(state), "no such volume") {
		t.Fatalf("CheckDisk() error state = %+v", state)
	}
}
