package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GET_DOWNLOAD_PATH", "")
	t.Setenv("GET_REPOS_PATH", "")
	t.Setenv("GET_LOG_VERBOSITY", "")
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.LogLevel)
	require.Len(t, cfg.Repositories, 2)
	assert.Equal(t, "winget", cfg.Repositories[0].Name)
	assert.Equal(t, "scoop", cfg.Repositories[1].Name)
	assert.Equal(t, cfg.ReposDir, cfg.CacheDir)
}

func TestLoadValid(t *testing.T) {
	clearEnv(t)
	content := `
download_dir = "/tmp/dl"
repos_dir = "/tmp/repos"
log_level = "debug"

[[repositories]]
name = "extras"
url = "https://example.com/extras.git"
format = "scoop"
`
	path := filepath.Join(t.TempDir(), "get.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/dl", cfg.DownloadDir)
	assert.Equal(t, "/tmp/repos", cfg.ReposDir)
	assert.Equal(t, "/tmp/repos", cfg.CacheDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Repositories, 1)
	assert.Equal(t, filepath.Join("/tmp/repos", "extras"), cfg.RepoPath("extras"))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GET_DOWNLOAD_PATH", "/env/dl")
	t.Setenv("GET_LOG_VERBOSITY", "verbose")
	t.Setenv("GET_PREFERRED_MANAGER", "scoop")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "/env/dl", cfg.DownloadDir)
	assert.Equal(t, "verbose", cfg.LogLevel)
	assert.Equal(t, "scoop", cfg.PreferredManager)
}

func TestValidateRejectsBadRepositories(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Repositories = append(cfg.Repositories, Repository{Name: "winget", URL: "x", Format: "winget"})
	assert.Error(t, cfg.Validate())

	cfg.Repositories = []Repository{{Name: "odd", URL: "x", Format: "msgpack"}}
	assert.Error(t, cfg.Validate())

	cfg.Repositories = []Repository{{Name: "", URL: "x", Format: "scoop"}}
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "get.toml")
	cfg := GetDefaultConfig()
	cfg.LogLevel = "WARN"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", loaded.LogLevel)
	assert.Equal(t, cfg.Repositories, loaded.Repositories)
}
