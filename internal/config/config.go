package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ProjectFileName is the per-project configuration file looked up in the
// working directory.
const ProjectFileName = "tapedeck.toml"

// Paths contains directory and file locations.
type Paths struct {
	TapeDir       string `toml:"tape_dir"`
	TapeExtension string `toml:"tape_extension"`
	ReviewFile    string `toml:"review_file"`
	StateDir      string `toml:"state_dir"`
	ScratchDir    string `toml:"scratch_dir"`
	HistoryDB     string `toml:"history_db"`
	RepoDir       string `toml:"repo_dir"`
}

// Recorder contains settings for the external recorder process.
type Recorder struct {
	Binary string `toml:"binary"`
	// StateEnv names the environment variable that points the recorded
	// application at its private scratch directory.
	StateEnv       string            `toml:"state_env"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	RequireOutput  bool              `toml:"require_output"`
	Env            map[string]string `toml:"env"`
}

// Build contains the optional command run once before a generate batch.
type Build struct {
	Command []string `toml:"command"`
}

// Generate contains batch scheduling settings.
type Generate struct {
	// MaxParallel caps concurrent renders. Zero means one job per tape.
	MaxParallel int `toml:"max_parallel"`
}

// Git contains settings for the version-control queries.
type Git struct {
	Binary string `toml:"binary"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tapedeck.
//
// Configuration sections by subsystem:
//   - Paths: tape discovery, review output, scratch and history locations
//   - Recorder: external recorder binary, state env var, timeout
//   - Build: pre-build command run before rendering
//   - Generate: render fan-out limits
//   - Git: binary used for staleness queries
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Recorder Recorder `toml:"recorder"`
	Build    Build    `toml:"build"`
	Generate Generate `toml:"generate"`
	Git      Git      `toml:"git"`
	Logging  Logging  `toml:"logging"`

	// Root is the directory relative paths were resolved against.
	Root string `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the user-level configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tapedeck/config.toml", "")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, root, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	cfg.Root = root
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// resolveConfigPath picks the config file and the root relative paths are
// resolved against: the directory holding an explicit or project config, or
// the working directory otherwise.
func resolveConfigPath(path string) (string, bool, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, "", fmt.Errorf("resolve working directory: %w", err)
	}

	if path != "" {
		expanded, err := expandPath(path, cwd)
		if err != nil {
			return "", false, "", err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, filepath.Dir(expanded), nil
			}
			return "", false, "", fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, filepath.Dir(expanded), nil
	}

	projectPath := filepath.Join(cwd, ProjectFileName)
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, cwd, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, "", err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, cwd, nil
	}

	return projectPath, false, cwd, nil
}

// EnsureDirectories creates the state and scratch directories. The tape
// directory is never created; a missing tape dir is a caller error.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.ScratchDir, filepath.Dir(c.Paths.HistoryDB)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the file guarding against overlapping generate runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "generate.lock")
}

// LogPath returns the log file written next to the history database.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "tapedeck.log")
}

// RecorderEnv returns the configured extra recorder variables as KEY=VALUE
// pairs in a stable order.
func (c *Config) RecorderEnv() []string {
	return sortedEnv(c.Recorder.Env)
}

func expandPath(pathValue, base string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	if !filepath.IsAbs(cleaned) && base != "" {
		cleaned = filepath.Join(base, cleaned)
	}
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
// Relative paths resolve against the working directory.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue, "")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
