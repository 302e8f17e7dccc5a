// Package vcs issues the read-only git queries used for staleness checks.
package vcs

import (
	"context"
	"fmt"
	"strings"

	"tapedeck/internal/services"
)

// CommitID identifies a commit. The zero value means no commit.
type CommitID string

// IsZero reports whether the id is absent.
func (c CommitID) IsZero() bool { return c == "" }

// Short returns the abbreviated form used in CLI output.
func (c CommitID) Short() string {
	if len(c) > 12 {
		return string(c[:12])
	}
	return string(c)
}

// Option configures the git client.
type Option func(*Git)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(g *Git) {
		if exec != nil {
			g.exec = exec
		}
	}
}

// Git runs queries against one working tree.
type Git struct {
	binary string
	dir    string
	exec   services.Executor
}

// New constructs a client that runs binary inside dir. An empty binary selects "git".
func New(binary, dir string, opts ...Option) *Git {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "git"
	}
	g := &Git{binary: binary, dir: dir, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Head returns the commit HEAD points at.
func (g *Git) Head(ctx context.Context) (CommitID, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	id := CommitID(out)
	if id.IsZero() {
		return "", services.Wrap(services.ErrExternalTool, "git", "rev-parse HEAD", "empty output", nil)
	}
	return id, nil
}

// LastCommit returns the most recent commit that touched path, or the zero
// CommitID when path has no history.
func (g *Git) LastCommit(ctx context.Context, path string) (CommitID, error) {
	out, err := g.run(ctx, "log", "-n", "1", "--pretty=format:%H", "--", path)
	if err != nil {
		return "", err
	}
	return CommitID(out), nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	result, err := g.exec.Run(ctx, services.Command{Binary: g.binary, Args: args, Dir: g.dir}, nil)
	operation := strings.Join(args[:1], " ")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("git %s: %w", operation, ctxErr)
		}
		return "", services.Wrap(services.ErrExternalTool, "git", operation, "run git", err)
	}
	output := strings.TrimSpace(string(result.Output))
	if result.ExitCode != 0 {
		return "", services.Wrap(services.ErrExternalTool, "git", operation,
			fmt.Sprintf("exit status %d: %s", result.ExitCode, output), nil)
	}
	return output, nil
}
