package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tapedeck/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries and directories tapedeck needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			statuses := preflight.CheckSystemDeps(cfg)
			checks := preflight.RunAll(cmd.Context(), cfg)

			problems := 0
			for _, status := range statuses {
				if !status.Available && !status.Optional {
					problems++
				}
			}
			for _, check := range checks {
				if !check.Passed {
					problems++
				}
			}

			if ctx.JSONMode() {
				if err := writeJSON(cmd, map[string]any{
					"config":       ctx.configPath,
					"dependencies": statuses,
					"checks":       checks,
					"problems":     problems,
				}); err != nil {
					return err
				}
				return doctorResult(problems)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			configNote := ctx.configPath
			if !ctx.configSeen {
				configNote += " (not found, defaults used)"
			}
			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, configNote, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, status := range statuses {
				switch {
				case status.Available:
					fmt.Fprintln(out, renderStatusLine(status.Name, statusOK, status.Path, colorize))
				case status.Optional:
					fmt.Fprintln(out, renderStatusLine(status.Name, statusWarn, status.Detail, colorize))
				default:
					fmt.Fprintln(out, renderStatusLine(status.Name, statusError, status.Detail+" ("+status.Description+")", colorize))
				}
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			return doctorResult(problems)
		},
	}
}

func doctorResult(problems int) error {
	if problems == 0 {
		return nil
	}
	return fmt.Errorf("doctor found %d problem(s)", problems)
}
