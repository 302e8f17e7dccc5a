package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.Paths.HistoryDB)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			jobs, err := store.RecentJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				if jobs == nil {
					jobs = []history.JobRecord{}
				}
				return writeJSON(cmd, jobs)
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No render jobs recorded")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				detail := job.Failure
				if job.ExitCode != nil {
					detail += " (exit " + strconv.Itoa(*job.ExitCode) + ")"
				}
				rows = append(rows, []string{
					job.Finished.Local().Format(time.DateTime),
					job.Tape,
					job.Output,
					job.Status,
					formatElapsed(job.Duration()),
					detail,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Finished", "Tape", "Output", "Status", "Duration", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}
