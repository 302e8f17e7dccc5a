package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tapedeck/internal/batch"
	"tapedeck/internal/config"
	"tapedeck/internal/history"
	"tapedeck/internal/logging"
	"tapedeck/internal/recorder"
	"tapedeck/internal/review"
	"tapedeck/internal/scratch"
	"tapedeck/internal/services"
	"tapedeck/internal/staleness"
	"tapedeck/internal/tape"
	"tapedeck/internal/vcs"
)

// Ledger records run history. history.Store satisfies it.
type Ledger interface {
	StartRun(ctx context.Context, runID string, tapes []string) error
	FinishRun(ctx context.Context, runID string, runErr error) error
	RecordJob(ctx context.Context, job history.JobRecord) error
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithExecutor injects the executor used for the recorder, git, and the
// pre-build command (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(p *Pipeline) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithLedger records runs and jobs in ledger.
func WithLedger(ledger Ledger) Option {
	return func(p *Pipeline) {
		p.ledger = ledger
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline runs generate and check against one project configuration.
type Pipeline struct {
	cfg     *config.Config
	catalog *tape.Catalog
	exec    services.Executor
	ledger  Ledger
	logger  *slog.Logger
}

// GenerateResult summarizes a generate run.
type GenerateResult struct {
	RunID     string
	Scripts   []tape.Script
	Artifacts []recorder.Artifact
	// ReviewFile is empty when the review document was not written.
	ReviewFile string
	Elapsed    time.Duration
}

// New constructs a pipeline for cfg.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config required", nil)
	}
	p := &Pipeline{
		cfg:     cfg,
		catalog: tape.NewCatalog(cfg.Paths.TapeDir, cfg.Paths.TapeExtension),
		exec:    services.CommandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Catalog exposes the tape catalog the pipeline resolves against.
func (p *Pipeline) Catalog() *tape.Catalog { return p.catalog }

// Generate renders the named tapes, or every tape when names is empty, and
// rewrites the review document when all of them succeed. On render failure the
// error is a *batch.BatchError and the review document is left untouched.
func (p *Pipeline) Generate(ctx context.Context, names []string) (GenerateResult, error) {
	started := time.Now()
	scripts, err := p.catalog.ResolveAll(names)
	if err != nil {
		return GenerateResult{}, err
	}
	if err := p.cfg.EnsureDirectories(); err != nil {
		return GenerateResult{}, services.Wrap(services.ErrConfiguration, "pipeline", "generate", "prepare directories", err)
	}

	lock := flock.New(p.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return GenerateResult{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return GenerateResult{}, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release generate lock", logging.Error(err))
		}
	}()

	result := GenerateResult{RunID: uuid.NewString(), Scripts: scripts}
	ctx = services.WithRunID(ctx, result.RunID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(p.logger, "pipeline"))
	logger.Info("generate started", logging.Int("tapes", len(scripts)))

	if err := p.build(ctx, logger); err != nil {
		return result, err
	}

	renderer, err := p.renderer()
	if err != nil {
		return result, err
	}

	p.startRun(ctx, logger, result.RunID, scripts)
	scheduler := batch.NewScheduler(renderer,
		batch.WithMaxParallel(p.cfg.Generate.MaxParallel),
		batch.WithObserver(&ledgerObserver{ledger: p.ledger, runID: result.RunID, logger: logging.NewComponentLogger(p.logger, "pipeline")}),
		batch.WithLogger(p.logger),
	)
	artifacts, runErr := scheduler.RenderAll(ctx, scripts)
	result.Artifacts = artifacts
	p.finishRun(ctx, logger, result.RunID, runErr)
	result.Elapsed = time.Since(started)

	if runErr != nil {
		logger.Error("generate failed", logging.Error(runErr), logging.Duration("elapsed", result.Elapsed))
		return result, runErr
	}

	outputs := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		outputs = append(outputs, artifact.Output)
	}
	if err := review.Write(p.cfg.Paths.ReviewFile, outputs); err != nil {
		return result, err
	}
	result.ReviewFile = p.cfg.Paths.ReviewFile
	logger.Info("generate finished",
		logging.Int("artifacts", len(artifacts)),
		logging.String("review_file", result.ReviewFile),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// Check resolves the named tapes, or every tape when names is empty, and
// reports whether their declared outputs are current with HEAD. Nothing is
// rendered.
func (p *Pipeline) Check(ctx context.Context, names []string) (staleness.Report, error) {
	scripts, err := p.catalog.ResolveAll(names)
	if err != nil {
		return staleness.Report{}, err
	}
	artifacts := make([]recorder.Artifact, 0, len(scripts))
	for _, script := range scripts {
		artifacts = append(artifacts, recorder.Artifact{Output: script.Output, Script: script})
	}
	git := vcs.New(p.cfg.Git.Binary, p.cfg.Paths.RepoDir, vcs.WithExecutor(p.exec))
	repo := projectRepository{Git: git, root: p.cfg.Root}
	return staleness.New(repo, p.logger).CheckAll(ctx, artifacts)
}

// projectRepository queries history for outputs as the recorder wrote them:
// relative outputs live under the project root, which need not be repo_dir.
type projectRepository struct {
	*vcs.Git
	root string
}

func (r projectRepository) LastCommit(ctx context.Context, path string) (vcs.CommitID, error) {
	if !filepath.IsAbs(path) && r.root != "" {
		path = filepath.Join(r.root, path)
	}
	return r.Git.LastCommit(ctx, path)
}

// CleanScratch removes job directories older than maxAge. It refuses to run
// while a generate run holds the lock, since that run's directories are live.
func (p *Pipeline) CleanScratch(ctx context.Context, maxAge time.Duration) (scratch.CleanResult, error) {
	if err := p.cfg.EnsureDirectories(); err != nil {
		return scratch.CleanResult{}, services.Wrap(services.ErrConfiguration, "pipeline", "clean scratch", "prepare directories", err)
	}
	lock := flock.New(p.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return scratch.CleanResult{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return scratch.CleanResult{}, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()
	return scratch.CleanStale(ctx, p.cfg.Paths.ScratchDir, maxAge, p.logger), nil
}

func (p *Pipeline) renderer() (*recorder.Renderer, error) {
	return recorder.New(p.cfg.Recorder.Binary, p.cfg.Paths.ScratchDir,
		recorder.WithExecutor(p.exec),
		recorder.WithStateEnv(p.cfg.Recorder.StateEnv),
		recorder.WithEnv(p.cfg.RecorderEnv()),
		recorder.WithTimeout(time.Duration(p.cfg.Recorder.TimeoutSeconds)*time.Second),
		recorder.WithWorkDir(p.cfg.Root),
		recorder.WithRequireOutput(p.cfg.Recorder.RequireOutput),
		recorder.WithLogger(p.logger),
	)
}

// build runs the configured pre-build command once, in the project root.
func (p *Pipeline) build(ctx context.Context, logger *slog.Logger) error {
	command := p.cfg.Build.Command
	if len(command) == 0 {
		return nil
	}
	display := strings.Join(command, " ")
	logger.Info("pre-build started", logging.String("command", display))
	result, err := p.exec.Run(ctx, services.Command{
		Binary: command[0],
		Args:   command[1:],
		Dir:    p.cfg.Root,
	}, func(line string) {
		logger.Debug("pre-build output", logging.String("line", line))
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("pre-build: %w", ctxErr)
		}
		return services.Wrap(services.ErrExternalTool, "pipeline", "pre-build", display, err)
	}
	if result.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "pipeline", "pre-build",
			fmt.Sprintf("%s exited with status %d", display, result.ExitCode), nil)
	}
	return nil
}

func (p *Pipeline) startRun(ctx context.Context, logger *slog.Logger, runID string, scripts []tape.Script) {
	if p.ledger == nil {
		return
	}
	names := make([]string, 0, len(scripts))
	for _, script := range scripts {
		names = append(names, script.Name)
	}
	if err := p.ledger.StartRun(context.WithoutCancel(ctx), runID, names); err != nil {
		warnHistory(logger, err)
	}
}

func (p *Pipeline) finishRun(ctx context.Context, logger *slog.Logger, runID string, runErr error) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
		warnHistory(logger, err)
	}
}

type ledgerObserver struct {
	ledger Ledger
	runID  string
	logger *slog.Logger
}

func (o *ledgerObserver) JobStarted(context.Context, batch.Job) {}

func (o *ledgerObserver) JobFinished(ctx context.Context, outcome batch.Outcome) {
	if o.ledger == nil {
		return
	}
	record := history.JobRecord{
		ID:       outcome.Job.ID,
		RunID:    o.runID,
		Tape:     outcome.Job.Script.Name,
		Output:   outcome.Job.Script.Output,
		Status:   history.StatusSucceeded,
		Started:  outcome.Started,
		Finished: outcome.Finished,
	}
	if outcome.Err != nil {
		record.Status = history.StatusFailed
		record.Failure = services.FailureKind(outcome.Err)
		record.Error = outcome.Err.Error()
		var failed *recorder.RenderFailedError
		if errors.As(outcome.Err, &failed) {
			code := failed.ExitCode
			record.ExitCode = &code
		}
	}
	if err := o.ledger.RecordJob(context.WithoutCancel(ctx), record); err != nil {
		warnHistory(logging.WithContext(ctx, o.logger), err)
	}
}

func warnHistory(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "history ledger write failed", "history_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check history_db path and permissions"),
		logging.String(logging.FieldImpact, "run not recorded in history"),
	)
}
