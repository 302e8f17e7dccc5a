package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tapedeck/internal/logging"
	"tapedeck/internal/recorder"
	"tapedeck/internal/services"
	"tapedeck/internal/tape"
)

// Renderer renders one tape. recorder.Renderer satisfies it.
type Renderer interface {
	Render(ctx context.Context, script tape.Script) (recorder.Artifact, error)
}

// Job identifies one render within a batch.
type Job struct {
	ID     string
	Index  int
	Script tape.Script
}

// Outcome is the finished state of a job.
type Outcome struct {
	Job      Job
	Artifact recorder.Artifact
	Err      error
	Started  time.Time
	Finished time.Time
}

// Observer receives job lifecycle callbacks. Callbacks run on job goroutines
// and must be safe for concurrent use. A job skipped because ctx ended before
// it started reports JobFinished without JobStarted.
type Observer interface {
	JobStarted(ctx context.Context, job Job)
	JobFinished(ctx context.Context, outcome Outcome)
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithMaxParallel caps the number of concurrently running jobs. Zero or a
// negative value runs every job at once.
func WithMaxParallel(n int) Option {
	return func(s *Scheduler) {
		s.maxParallel = n
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(s *Scheduler) {
		s.observer = observer
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.NewComponentLogger(logger, "batch")
	}
}

// Scheduler runs render jobs concurrently.
type Scheduler struct {
	renderer    Renderer
	maxParallel int
	observer    Observer
	logger      *slog.Logger
}

// NewScheduler constructs a scheduler around renderer.
func NewScheduler(renderer Renderer, opts ...Option) *Scheduler {
	s := &Scheduler{
		renderer: renderer,
		logger:   logging.NewComponentLogger(nil, "batch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RenderAll renders every script and waits for all of them. Successful
// artifacts are returned in input order. When any job failed the error is a
// *BatchError listing each failure in input order.
func (s *Scheduler) RenderAll(ctx context.Context, scripts []tape.Script) ([]recorder.Artifact, error) {
	artifacts := make([]recorder.Artifact, len(scripts))
	errs := make([]error, len(scripts))

	var group errgroup.Group
	if s.maxParallel > 0 {
		group.SetLimit(s.maxParallel)
	}

	for i, script := range scripts {
		job := Job{ID: uuid.NewString(), Index: i, Script: script}
		group.Go(func() error {
			artifacts[i], errs[i] = s.run(ctx, job)
			return nil
		})
	}
	_ = group.Wait()

	var (
		succeeded = make([]recorder.Artifact, 0, len(scripts))
		failures  []JobError
	)
	for i, err := range errs {
		if err != nil {
			failures = append(failures, JobError{Index: i, Script: scripts[i], Err: err})
			continue
		}
		succeeded = append(succeeded, artifacts[i])
	}
	if len(failures) > 0 {
		return succeeded, &BatchError{Failures: failures, Total: len(scripts)}
	}
	return succeeded, nil
}

func (s *Scheduler) run(ctx context.Context, job Job) (recorder.Artifact, error) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithTape(ctx, job.Script.Name)
	logger := logging.WithContext(ctx, s.logger)

	outcome := Outcome{Job: job, Started: time.Now()}
	if err := ctx.Err(); err != nil {
		outcome.Err = err
		outcome.Finished = outcome.Started
		s.finished(ctx, outcome)
		logger.Info("render skipped", logging.String("reason", services.FailureKind(err)))
		return recorder.Artifact{}, err
	}

	if s.observer != nil {
		s.observer.JobStarted(ctx, job)
	}
	logger.Info("render started", logging.String("output", job.Script.Output))

	outcome.Artifact, outcome.Err = s.renderer.Render(ctx, job.Script)
	outcome.Finished = time.Now()
	s.finished(ctx, outcome)

	elapsed := logging.Duration("elapsed", outcome.Finished.Sub(outcome.Started))
	if outcome.Err != nil {
		logger.Error("render failed",
			logging.String("output", job.Script.Output),
			logging.String("failure", services.FailureKind(outcome.Err)),
			logging.Error(outcome.Err),
			elapsed,
		)
		return recorder.Artifact{}, outcome.Err
	}
	logger.Info("render finished", logging.String("output", outcome.Artifact.Output), elapsed)
	return outcome.Artifact, nil
}

func (s *Scheduler) finished(ctx context.Context, outcome Outcome) {
	if s.observer != nil {
		s.observer.JobFinished(ctx, outcome)
	}
}
