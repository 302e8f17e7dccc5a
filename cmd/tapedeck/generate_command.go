package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tapedeck/internal/batch"
	"tapedeck/internal/deps"
	"tapedeck/internal/pipeline"
	"tapedeck/internal/preflight"
	"tapedeck/internal/services"
)

type generateJob struct {
	Tape    string `json:"tape"`
	Output  string `json:"output"`
	Status  string `json:"status"`
	Failure string `json:"failure,omitempty"`
	Error   string `json:"error,omitempty"`
}

type generateSummary struct {
	RunID      string        `json:"run_id"`
	ReviewFile string        `json:"review_file,omitempty"`
	ElapsedMS  int64         `json:"elapsed_ms"`
	Jobs       []generateJob `json:"jobs"`
	Error      string        `json:"error,omitempty"`
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "generate [tape...]",
		Short: "Render tapes into GIFs and rewrite the review document",
		Long: `Render the named tapes, or every tape in the tape directory, concurrently.

Each recording runs in a private scratch directory. When every render succeeds
the review document is rewritten to list the artifacts in tape order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p, closeHistory, err := ctx.newPipeline(cmd, true)
			if err != nil {
				return err
			}
			defer closeHistory()

			// Unknown or malformed tapes are reported ahead of missing binaries.
			if _, err := p.Catalog().ResolveAll(args); err != nil {
				return err
			}
			if missing := deps.Missing(preflight.CheckRenderDeps(cfg)); len(missing) > 0 {
				return missingDepsError(missing)
			}

			result, runErr := p.Generate(cmd.Context(), args)
			summary := summarizeGenerate(result, runErr)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
				return runErr
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, job := range summary.Jobs {
				kind, message := statusOK, job.Output
				if job.Status != "ok" {
					kind, message = statusError, fmt.Sprintf("%s (%s)", job.Output, job.Error)
				}
				fmt.Fprintln(out, renderStatusLine(job.Tape, kind, message, colorize))
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(out, "\nRendered %d tape(s) in %s\n", len(summary.Jobs), formatElapsed(result.Elapsed))
			fmt.Fprintf(out, "Don't forget to check all GIFs in %s before pushing!\n", displayPath(cfg.Root, result.ReviewFile))
			return nil
		},
	}
}

func summarizeGenerate(result pipeline.GenerateResult, runErr error) generateSummary {
	summary := generateSummary{
		RunID:      result.RunID,
		ReviewFile: result.ReviewFile,
		ElapsedMS:  result.Elapsed.Milliseconds(),
		Jobs:       make([]generateJob, 0, len(result.Scripts)),
	}
	failures := map[int]error{}
	var batchErr *batch.BatchError
	if errors.As(runErr, &batchErr) {
		for _, failure := range batchErr.Failures {
			failures[failure.Index] = failure.Err
		}
	} else if runErr != nil {
		summary.Error = runErr.Error()
	}
	for i, script := range result.Scripts {
		job := generateJob{Tape: script.Name, Output: script.Output, Status: "ok"}
		if err, failed := failures[i]; failed {
			job.Status = "failed"
			job.Failure = services.FailureKind(err)
			job.Error = err.Error()
		} else if runErr != nil && batchErr == nil {
			job.Status = "skipped"
			job.Error = "not rendered"
		}
		summary.Jobs = append(summary.Jobs, job)
	}
	return summary
}

func missingDepsError(missing []deps.Status) error {
	parts := make([]string, 0, len(missing))
	for _, status := range missing {
		parts = append(parts, fmt.Sprintf("%s: %s", status.Name, status.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "generate", "preflight",
		"missing dependencies ("+strings.Join(parts, "; ")+"); run tapedeck doctor", nil)
}
