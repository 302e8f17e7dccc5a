package preflight

import (
	"context"
	"path/filepath"

	"tapedeck/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryReadable("Tape directory", cfg.Paths.TapeDir),
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckDirectoryAccess("Review directory", filepath.Dir(cfg.Paths.ReviewFile)),
	}
	if ctx.Err() != nil {
		return results
	}
	results = append(results, CheckDirectoryReadable("Repository", cfg.Paths.RepoDir))
	return results
}
