// pkg/config/config.go - configuration settings for get.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the name of the configuration file in the user's home directory.
const ConfigFileName = ".get_config.toml"

// Manifest formats understood by the index.
const (
	FormatWinget = "winget"
	FormatScoop  = "scoop"
)

// Repository describes one remote manifest repository. Repositories are
// consulted in the order they appear in the configuration.
type Repository struct {
	Name    string `toml:"name"`
	URL     string `toml:"url"`
	Format  string `toml:"format"`
	Pattern string `toml:"pattern,omitempty"` // file glob; empty means the format default
}

// Configuration holds the configurable options for get in TOML format
type Configuration struct {
	DownloadDir      string       `toml:"download_dir"`
	ReposDir         string       `toml:"repos_dir"`
	CacheDir         string       `toml:"cache_dir"`
	AppsDir          string       `toml:"apps_dir"`
	LogDir           string       `toml:"log_dir"`
	StatePath        string       `toml:"state_path"`
	LogLevel         string       `toml:"log_level"`
	LogRetentionDays int          `toml:"log_retention_days,omitempty"`
	PreferredManager string       `toml:"preferred_manager"`
	Shell            string       `toml:"shell,omitempty"`
	Architecture     string       `toml:"architecture,omitempty"`
	IndexWorkers     int          `toml:"index_workers,omitempty"`
	Repositories     []Repository `toml:"repositories"`
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(homeDir(), ConfigFileName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// DefaultRepositories are the winget community repository followed by the
// scoop main bucket; winget wins when both carry a package.
func DefaultRepositories() []Repository {
	return []Repository{
		{Name: "winget", URL: "https://github.com/microsoft/winget-pkgs.git", Format: FormatWinget},
		{Name: "scoop", URL: "https://github.com/ScoopInstaller/Main.git", Format: FormatScoop},
	}
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	home := homeDir()
	reposDir := filepath.Join(home, ".get_repos")
	manager := "choco"
	if runtime.GOOS != "windows" {
		manager = ""
	}
	return &Configuration{
		DownloadDir:      filepath.Join(home, "Downloads"),
		ReposDir:         reposDir,
		AppsDir:          filepath.Join(home, ".get_apps"),
		LogDir:           filepath.Join(home, ".get_logs"),
		StatePath:        filepath.Join(home, ".get_installed.yaml"),
		LogLevel:         "INFO",
		PreferredManager: manager,
		Repositories:     DefaultRepositories(),
	}
}

// LoadConfig loads the configuration from path. A missing file yields the
// defaults. Environment overrides are applied last.
func LoadConfig(path string) (*Configuration, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// a configured repository list replaces the defaults
		cfg.Repositories = nil
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(cfg)
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies the GET_* environment overrides.
func applyEnv(cfg *Configuration) {
	if v := os.Getenv("GET_DOWNLOAD_PATH"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("GET_REPOS_PATH"); v != "" {
		cfg.ReposDir = v
		cfg.CacheDir = v
	}
	if v := os.Getenv("GET_LOG_VERBOSITY"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("GET_PREFERRED_MANAGER"); ok {
		cfg.PreferredManager = v
	}
}

func fillDefaults(cfg *Configuration) {
	def := GetDefaultConfig()
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = def.DownloadDir
	}
	if cfg.ReposDir == "" {
		cfg.ReposDir = def.ReposDir
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = cfg.ReposDir
	}
	if cfg.AppsDir == "" {
		cfg.AppsDir = def.AppsDir
	}
	if cfg.StatePath == "" {
		cfg.StatePath = def.StatePath
	}
	if len(cfg.Repositories) == 0 {
		cfg.Repositories = def.Repositories
	}
}

// Validate checks the repository list.
func (c *Configuration) Validate() error {
	seen := make(map[string]bool)
	for i, r := range c.Repositories {
		if r.Name == "" || r.URL == "" {
			return fmt.Errorf("repository %d: name and url are required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("repository %q is configured twice", r.Name)
		}
		seen[r.Name] = true
		switch strings.ToLower(r.Format) {
		case FormatWinget, FormatScoop:
		default:
			return fmt.Errorf("repository %q: unsupported format %q", r.Name, r.Format)
		}
	}
	return nil
}

// RepoPath returns the local mirror path of the named repository.
func (c *Configuration) RepoPath(name string) string {
	return filepath.Join(c.ReposDir, name)
}

// SaveConfig saves the configuration to path in TOML format.
func SaveConfig(path string, cfg *Configuration) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
