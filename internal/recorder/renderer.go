package recorder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tapedeck/internal/logging"
	"tapedeck/internal/services"
	"tapedeck/internal/tape"
)

// ScratchPrefix starts the name of every job directory under the scratch root.
const ScratchPrefix = "job-"

// Artifact is the product of one successful render.
type Artifact struct {
	// Output is the artifact path as declared by the tape.
	Output string
	Script tape.Script
}

// Option configures the renderer.
type Option func(*Renderer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(r *Renderer) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithStateEnv sets the variable carrying the job scratch directory.
func WithStateEnv(name string) Option {
	return func(r *Renderer) {
		if name = strings.TrimSpace(name); name != "" {
			r.stateEnv = name
		}
	}
}

// WithEnv adds KEY=VALUE pairs to every recorder invocation.
func WithEnv(env []string) Option {
	return func(r *Renderer) {
		r.extraEnv = append([]string(nil), env...)
	}
}

// WithBaseEnv replaces the inherited parent environment.
func WithBaseEnv(env func() []string) Option {
	return func(r *Renderer) {
		if env != nil {
			r.baseEnv = env
		}
	}
}

// WithTimeout bounds each render. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		r.timeout = d
	}
}

// WithWorkDir sets the directory the recorder runs in. Relative output paths
// are resolved against it.
func WithWorkDir(dir string) Option {
	return func(r *Renderer) {
		r.workDir = dir
	}
}

// WithRequireOutput makes a successful exit without an output file an error.
func WithRequireOutput(enabled bool) Option {
	return func(r *Renderer) {
		r.requireOutput = enabled
	}
}

// WithLogger sets the logger used for recorder output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logging.NewComponentLogger(logger, "recorder")
	}
}

// DefaultStateEnv is the variable name used when none is configured.
const DefaultStateEnv = "TAPEDECK_STATE_DIR"

// Renderer invokes the recorder binary once per Render call.
type Renderer struct {
	binary        string
	scratchRoot   string
	stateEnv      string
	extraEnv      []string
	baseEnv       func() []string
	timeout       time.Duration
	workDir       string
	requireOutput bool
	exec          services.Executor
	logger        *slog.Logger
}

// New constructs a renderer that runs binary with job directories under scratchRoot.
func New(binary, scratchRoot string, opts ...Option) (*Renderer, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "recorder", "init", "recorder binary required", nil)
	}
	if strings.TrimSpace(scratchRoot) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "recorder", "init", "scratch root required", nil)
	}
	r := &Renderer{
		binary:      binary,
		scratchRoot: scratchRoot,
		stateEnv:    DefaultStateEnv,
		baseEnv:     os.Environ,
		exec:        services.CommandExecutor{},
		logger:      logging.NewComponentLogger(nil, "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Render records script into its declared output. The job scratch directory is
// named after the job ID carried by ctx, or a fresh UUID when there is none.
func (r *Renderer) Render(ctx context.Context, script tape.Script) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	jobID, ok := services.JobIDFromContext(ctx)
	if !ok {
		jobID = uuid.NewString()
		ctx = services.WithJobID(ctx, jobID)
	}
	logger := logging.WithContext(ctx, r.logger)

	if err := os.MkdirAll(r.scratchRoot, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("ensure scratch root: %w", err)
	}
	scratchDir := filepath.Join(r.scratchRoot, ScratchPrefix+jobID)
	if err := os.Mkdir(scratchDir, 0o700); err != nil {
		return Artifact{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			logging.WarnWithContext(logger, "scratch cleanup failed", "scratch_cleanup_failed",
				logging.String("scratch_dir", scratchDir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run tapedeck scratch clean"),
			)
		}
	}()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger.Debug("recorder starting",
		logging.String("script", script.Path),
		logging.String("scratch_dir", scratchDir),
	)
	started := time.Now()
	result, err := r.exec.Run(runCtx, services.Command{
		Binary: r.binary,
		Args:   []string{script.Path},
		Dir:    r.workDir,
		Env:    r.environ(scratchDir),
	}, func(line string) {
		logger.Debug("recorder output", logging.String("line", line))
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Artifact{}, fmt.Errorf("render %s: %w", script.Name, ctxErr)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Artifact{}, services.Wrap(services.ErrTimeout, "recorder", "render "+script.Name,
				fmt.Sprintf("exceeded %s", r.timeout), err)
		}
		return Artifact{}, services.Wrap(services.ErrExternalTool, "recorder", "render "+script.Name, "run recorder", err)
	}
	if result.ExitCode != 0 {
		return Artifact{}, &RenderFailedError{Script: script, ExitCode: result.ExitCode, Output: string(result.Output)}
	}
	if r.requireOutput {
		path := r.resolveOutput(script.Output)
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return Artifact{}, &MissingOutputError{Script: script, Path: path}
		}
	}

	logger.Debug("recorder finished", logging.Duration("elapsed", time.Since(started)))
	return Artifact{Output: script.Output, Script: script}, nil
}

// environ builds the child environment for one job. Any inherited value for
// the state variable is replaced.
func (r *Renderer) environ(scratchDir string) []string {
	prefix := r.stateEnv + "="
	base := r.baseEnv()
	env := make([]string, 0, len(base)+len(r.extraEnv)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, r.extraEnv...)
	return append(env, prefix+scratchDir)
}

func (r *Renderer) resolveOutput(output string) string {
	if filepath.IsAbs(output) || r.workDir == "" {
		return output
	}
	return filepath.Join(r.workDir, output)
}
