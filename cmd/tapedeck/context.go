package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tapedeck/internal/config"
	"tapedeck/internal/history"
	"tapedeck/internal/logging"
	"tapedeck/internal/pipeline"
)

type commandContext struct {
	configFlag   *string
	jsonFlag     *bool
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string, jsonFlag *bool, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		jsonFlag:     jsonFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was given.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// loggerFor builds the run logger once. Console output goes to the command's
// stderr; failures to open the state log fall back to a console-only logger.
func (c *commandContext) loggerFor(cmd *cobra.Command) *slog.Logger {
	c.loggerOnce.Do(func() {
		level := ""
		if c.logLevelFlag != nil {
			level = *c.logLevelFlag
		}
		logger, err := logging.NewFromConfig(c.config, level, cmd.ErrOrStderr())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			logger, _ = logging.NewFromConfig(nil, level, cmd.ErrOrStderr())
		}
		if logger == nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// newPipeline builds a pipeline for the loaded config. When withHistory is set
// the ledger is opened as well; the returned closer must always be called.
func (c *commandContext) newPipeline(cmd *cobra.Command, withHistory bool) (*pipeline.Pipeline, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, func() {}, err
	}
	logger := c.loggerFor(cmd)
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	closer := func() {}

	if withHistory {
		store, err := history.Open(cfg.Paths.HistoryDB)
		if err != nil {
			logging.WarnWithContext(logger, "history ledger unavailable", "history_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check history_db path and permissions"),
				logging.String(logging.FieldImpact, "run not recorded in history"),
			)
		} else {
			opts = append(opts, pipeline.WithLedger(store))
			closer = func() { _ = store.Close() }
		}
	}

	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		closer()
		return nil, func() {}, err
	}
	return p, closer, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
