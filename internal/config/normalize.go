package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRecorder()
	c.normalizeBuild()
	c.normalizeGit()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	root := c.Root
	if c.Paths.TapeDir, err = expandPath(strings.TrimSpace(c.Paths.TapeDir), root); err != nil {
		return fmt.Errorf("paths.tape_dir: %w", err)
	}
	if c.Paths.ReviewFile, err = expandPath(strings.TrimSpace(c.Paths.ReviewFile), root); err != nil {
		return fmt.Errorf("paths.review_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir), root); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = filepath.Join(c.Paths.StateDir, defaultScratchSubdir)
	}
	if c.Paths.ScratchDir, err = expandPath(strings.TrimSpace(c.Paths.ScratchDir), root); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = filepath.Join(c.Paths.StateDir, defaultHistoryFile)
	}
	if c.Paths.HistoryDB, err = expandPath(strings.TrimSpace(c.Paths.HistoryDB), root); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	if strings.TrimSpace(c.Paths.RepoDir) == "" {
		c.Paths.RepoDir = defaultRepoDir
	}
	if c.Paths.RepoDir, err = expandPath(strings.TrimSpace(c.Paths.RepoDir), root); err != nil {
		return fmt.Errorf("paths.repo_dir: %w", err)
	}

	ext := strings.TrimSpace(c.Paths.TapeExtension)
	if ext == "" {
		ext = defaultTapeExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Paths.TapeExtension = ext
	return nil
}

func (c *Config) normalizeRecorder() {
	if value, ok := os.LookupEnv("TAPEDECK_RECORDER"); ok && strings.TrimSpace(value) != "" {
		c.Recorder.Binary = value
	}
	c.Recorder.Binary = strings.TrimSpace(c.Recorder.Binary)
	if c.Recorder.Binary == "" {
		c.Recorder.Binary = defaultRecorderBinary
	}
	c.Recorder.StateEnv = strings.TrimSpace(c.Recorder.StateEnv)
	if c.Recorder.StateEnv == "" {
		c.Recorder.StateEnv = defaultRecorderStateEnv
	}
	if c.Recorder.TimeoutSeconds < 0 {
		c.Recorder.TimeoutSeconds = 0
	}
	if len(c.Recorder.Env) > 0 {
		cleaned := make(map[string]string, len(c.Recorder.Env))
		for key, value := range c.Recorder.Env {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			cleaned[key] = value
		}
		c.Recorder.Env = cleaned
	}
}

func (c *Config) normalizeBuild() {
	command := make([]string, 0, len(c.Build.Command))
	for _, part := range c.Build.Command {
		if strings.TrimSpace(part) == "" {
			continue
		}
		command = append(command, part)
	}
	if len(command) == 0 {
		command = nil
	}
	c.Build.Command = command
}

func (c *Config) normalizeGit() {
	if value, ok := os.LookupEnv("TAPEDECK_GIT"); ok && strings.TrimSpace(value) != "" {
		c.Git.Binary = value
	}
	c.Git.Binary = strings.TrimSpace(c.Git.Binary)
	if c.Git.Binary == "" {
		c.Git.Binary = defaultGitBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("TAPEDECK_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func sortedEnv(values map[string]string) []string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+values[key])
	}
	return env
}
