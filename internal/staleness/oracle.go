package staleness

import (
	"context"
	"fmt"
	"log/slog"

	"tapedeck/internal/logging"
	"tapedeck/internal/recorder"
	"tapedeck/internal/vcs"
)

// Repository answers the two history queries the oracle needs. vcs.Git satisfies it.
type Repository interface {
	Head(ctx context.Context) (vcs.CommitID, error)
	LastCommit(ctx context.Context, path string) (vcs.CommitID, error)
}

// Verdict is the outcome for one artifact.
type Verdict struct {
	Artifact recorder.Artifact
	Head     vcs.CommitID
	// Last is the most recent commit touching the artifact, zero when absent.
	Last vcs.CommitID
	Pass bool
}

// Report aggregates verdicts for a batch in input order.
type Report struct {
	Head     vcs.CommitID
	Verdicts []Verdict
	// Failing lists the output paths of failing artifacts in input order.
	Failing []string
}

// Passed reports whether every artifact is current.
func (r Report) Passed() bool { return len(r.Failing) == 0 }

// Oracle evaluates artifacts against a repository.
type Oracle struct {
	repo   Repository
	logger *slog.Logger
}

// New constructs an oracle. A nil logger discards output.
func New(repo Repository, logger *slog.Logger) *Oracle {
	return &Oracle{repo: repo, logger: logging.NewComponentLogger(logger, "staleness")}
}

// CheckOne evaluates a single artifact. Query failures are returned as errors
// rather than failing verdicts.
func (o *Oracle) CheckOne(ctx context.Context, artifact recorder.Artifact) (Verdict, error) {
	head, err := o.repo.Head(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("query head: %w", err)
	}
	return o.judge(ctx, head, artifact)
}

// CheckAll evaluates every artifact against a single HEAD lookup.
func (o *Oracle) CheckAll(ctx context.Context, artifacts []recorder.Artifact) (Report, error) {
	head, err := o.repo.Head(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("query head: %w", err)
	}
	report := Report{Head: head, Verdicts: make([]Verdict, 0, len(artifacts))}
	for _, artifact := range artifacts {
		verdict, err := o.judge(ctx, head, artifact)
		if err != nil {
			return Report{}, err
		}
		report.Verdicts = append(report.Verdicts, verdict)
		if !verdict.Pass {
			report.Failing = append(report.Failing, artifact.Output)
		}
	}
	o.logger.Debug("staleness check complete",
		logging.String("head", head.Short()),
		logging.Int("artifacts", len(artifacts)),
		logging.Int("failing", len(report.Failing)),
	)
	return report, nil
}

func (o *Oracle) judge(ctx context.Context, head vcs.CommitID, artifact recorder.Artifact) (Verdict, error) {
	last, err := o.repo.LastCommit(ctx, artifact.Output)
	if err != nil {
		return Verdict{}, fmt.Errorf("query history of %s: %w", artifact.Output, err)
	}
	verdict := Verdict{
		Artifact: artifact,
		Head:     head,
		Last:     last,
		Pass:     !head.IsZero() && last == head,
	}
	if !verdict.Pass {
		o.logger.Debug("artifact stale",
			logging.String("output", artifact.Output),
			logging.String("last_commit", last.Short()),
		)
	}
	return verdict, nil
}
