package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/scratch"
)

func newScratchCommand(ctx *commandContext) *cobra.Command {
	scratchCmd := &cobra.Command{
		Use:   "scratch",
		Short: "Inspect and clean render scratch directories",
	}

	scratchCmd.AddCommand(newScratchListCommand(ctx))
	scratchCmd.AddCommand(newScratchCleanCommand(ctx))

	return scratchCmd
}

func newScratchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List leftover job directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := cfg.Paths.ScratchDir
			dirs, err := scratch.List(root)
			if err != nil {
				return fmt.Errorf("list scratch directories: %w", err)
			}

			var totalSize int64
			for _, dir := range dirs {
				totalSize += dir.Size
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []scratch.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"scratch_dir":      root,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No scratch directories found")
				return nil
			}
			fmt.Fprintf(out, "Scratch directory: %s\n\n", root)
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				age := time.Since(dir.ModTime).Truncate(time.Minute)
				rows = append(rows, []string{dir.Name, formatDuration(age), formatBytes(dir.Size)})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Job", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), formatBytes(totalSize))
			return nil
		},
	}
}

func newScratchCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove job directories left by interrupted runs",
		Long: `Remove job directories under the scratch root.

Renders remove their own directories, so leftovers only come from a process
that was killed outright. Cleaning is refused while a generate run holds the
lock. Use --max-age to keep directories younger than the given duration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closer, err := ctx.newPipeline(cmd, false)
			if err != nil {
				return err
			}
			defer closer()

			result, err := p.CleanScratch(cmd.Context(), maxAge)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				errs := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
				}
				removed := result.Removed
				if removed == nil {
					removed = []string{}
				}
				return writeJSON(cmd, map[string]any{
					"removed": removed,
					"errors":  errs,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d scratch directories\n", len(result.Removed))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  failed: %s: %v\n", e.Path, e.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d scratch directories could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Only remove directories older than this (e.g. 1h)")
	return cmd
}
