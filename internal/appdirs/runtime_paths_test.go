package appdirs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDirFor(t *testing.T) {
	paths := Paths{OutputDir: filepath.Join("var", "storyboard", "output")}

	tests := []struct {
		name    string
		runID   string
		want    string
		wantErr bool
	}{
		{name: "uuid", runID: "6f1c2a9e-4b7d-4c1e-9a55-0e3f2b8d7c10", want: filepath.Join("var", "storyboard", "output", "runs", "6f1c2a9e-4b7d-4c1e-9a55-0e3f2b8d7c10")},
		{name: "asynq task id", runID: "run_123", want: filepath.Join("var", "storyboard", "output", "runs", "run_123")},
		{name: "empty", runID: "", wantErr: true},
		{name: "blank", runID: "  ", wantErr: true},
		{name: "padded", runID: " run_123", wantErr: true},
		{name: "parent", runID: "..", wantErr: true},
		{name: "nested", runID: "../cache", wantErr: true},
		{name: "backslash", runID: `a\b`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunDirFor(paths, tt.runID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootsFallBackWhenDirsAreEmpty(t *testing.T) {
	assert.Equal(t, "runs", RunRootFor(Paths{}))
	assert.Equal(t, "storyboards", SaveRootFor(Paths{}))
	assert.Equal(t, filepath.Join("cache", "storyboard.db"), DBPathFor(Paths{}))
	assert.Equal(t, filepath.Join("var", "cache", "storyboard.db"), DBPathFor(Paths{CacheDir: " var/cache/ "}))
}

func TestEnsureCreatesWritableDirs(t *testing.T) {
	root := t.TempDir()
	paths := Paths{OutputDir: filepath.Join(root, "output"), CacheDir: filepath.Join(root, "cache")}

	require.NoError(t, Ensure(paths))
	require.NoError(t, Ensure(paths))

	want := []string{
		filepath.Join(root, "cache"),
		filepath.Join(root, "output", "storyboards"),
		filepath.Join(root, "output", "runs"),
	}
	assert.Equal(t, want, WritableDirs(paths))
	for _, dir := range want {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureReportsBlockedDir(t *testing.T) {
	root := t.TempDir()
	output := filepath.Join(root, "output")
	require.NoError(t, os.WriteFile(output, []byte("not a dir"), 0o644))

	err := Ensure(Paths{OutputDir: output, CacheDir: filepath.Join(root, "cache")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storyboards")
}
