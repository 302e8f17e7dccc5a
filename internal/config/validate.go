package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRecorder(); err != nil {
		return err
	}
	if err := c.validateGenerate(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.TapeDir) == "" {
		return errors.New("paths.tape_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ReviewFile) == "" {
		return errors.New("paths.review_file must be set")
	}
	if strings.ContainsAny(c.Paths.TapeExtension, `/\`) {
		return fmt.Errorf("paths.tape_extension %q must not contain path separators", c.Paths.TapeExtension)
	}
	if c.Paths.TapeExtension == "." {
		return errors.New("paths.tape_extension must not be empty")
	}
	if isWithin(c.Paths.ScratchDir, c.Paths.TapeDir) {
		return errors.New("paths.scratch_dir must not be inside paths.tape_dir")
	}
	return nil
}

func (c *Config) validateRecorder() error {
	if strings.ContainsAny(c.Recorder.StateEnv, "= \t") {
		return fmt.Errorf("recorder.state_env %q is not a valid environment variable name", c.Recorder.StateEnv)
	}
	if _, ok := c.Recorder.Env[c.Recorder.StateEnv]; ok {
		return fmt.Errorf("recorder.env must not set %s; it is assigned per render", c.Recorder.StateEnv)
	}
	for key := range c.Recorder.Env {
		if strings.Contains(key, "=") {
			return fmt.Errorf("recorder.env key %q must not contain '='", key)
		}
	}
	return nil
}

func (c *Config) validateGenerate() error {
	if c.Generate.MaxParallel < 0 {
		return errors.New("generate.max_parallel must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}

func isWithin(path, dir string) bool {
	if path == "" || dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
