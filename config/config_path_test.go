package config

import (
	"os"
	"path/filepath"
	"storyboard-ai/internal/appdirs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHomeTestEnv(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv(appdirs.HomeEnv, home)

	oldConf := Conf
	oldEnv := envFile
	envFile = filepath.Join(home, ".env")
	t.Cleanup(func() {
		Conf = oldConf
		envFile = oldEnv
	})
	return home
}

func TestResolveConfigPathFollowsHome(t *testing.T) {
	home := setupHomeTestEnv(t)

	p, err := ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config", "config.toml"), p)
}

func TestLoadOrCreateConfigGeneratesDefaultWhenMissing(t *testing.T) {
	setupHomeTestEnv(t)

	p, err := ResolveConfigPath()
	require.NoError(t, err)

	Conf = Config{}

	created, err := LoadOrCreateConfig()
	require.NoError(t, err)
	require.True(t, created, "expected created=true when config file is missing")

	_, err = os.Stat(p)
	require.NoError(t, err)

	assert.Equal(t, 3.0, Conf.App.MaxSegmentSeconds)
	assert.Equal(t, "127.0.0.1", Conf.Server.Host)
	assert.Equal(t, 8888, Conf.Server.Port)
}

func TestLoadOrCreateConfigLoadsExisting(t *testing.T) {
	setupHomeTestEnv(t)

	Conf = Config{
		Server: Server{
			Host: "0.0.0.0",
			Port: 9999,
		},
	}
	require.NoError(t, SaveConfig())

	Conf = Config{}

	created, err := LoadOrCreateConfig()
	require.NoError(t, err)
	assert.False(t, created, "expected created=false when config file exists")
	assert.Equal(t, "0.0.0.0", Conf.Server.Host)
	assert.Equal(t, 9999, Conf.Server.Port)
}

func TestCheckConfigFillsSaveDirFromHome(t *testing.T) {
	home := setupHomeTestEnv(t)

	Conf = defaultConfig()
	require.NoError(t, CheckConfig())
	assert.Equal(t, filepath.Join(home, "output", "storyboards"), Conf.App.SaveDir)
}
