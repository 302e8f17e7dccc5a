package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tapedeck/internal/pipeline"
)

type checkVerdict struct {
	Tape       string `json:"tape"`
	Output     string `json:"output"`
	LastCommit string `json:"last_commit,omitempty"`
	Pass       bool   `json:"pass"`
}

type checkSummary struct {
	Head     string         `json:"head"`
	Passed   bool           `json:"passed"`
	Verdicts []checkVerdict `json:"verdicts"`
	Failing  []string       `json:"failing"`
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [tape...]",
		Short: "Verify committed GIFs were last changed in HEAD",
		Long: `Check that each artifact was last committed in HEAD.

Regenerated GIFs are expected to be amended into the same commit as the tape
change that caused them. Any artifact last touched by an older commit, or never
committed, is reported stale and the command exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closer, err := ctx.newPipeline(cmd, false)
			if err != nil {
				return err
			}
			defer closer()

			report, err := p.Check(cmd.Context(), args)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				summary := checkSummary{
					Head:     string(report.Head),
					Passed:   report.Passed(),
					Verdicts: make([]checkVerdict, 0, len(report.Verdicts)),
					Failing:  report.Failing,
				}
				if summary.Failing == nil {
					summary.Failing = []string{}
				}
				for _, v := range report.Verdicts {
					summary.Verdicts = append(summary.Verdicts, checkVerdict{
						Tape:       v.Artifact.Script.Name,
						Output:     v.Artifact.Output,
						LastCommit: string(v.Last),
						Pass:       v.Pass,
					})
				}
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
				return pipeline.StaleFromReport(report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Checking %d GIF(s) against %s\n", len(report.Verdicts), report.Head.Short())
			for _, v := range report.Verdicts {
				fmt.Fprintln(out, renderVerdictLine(v.Artifact.Script.Name, v.Artifact.Output, v.Pass, colorize))
			}
			if err := pipeline.StaleFromReport(report); err != nil {
				fmt.Fprintln(out, "\nRun tapedeck generate and amend the GIFs into HEAD.")
				return err
			}
			return nil
		},
	}
}
