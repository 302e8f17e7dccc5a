package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

type listedTape struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tapes and their declared outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p, closer, err := ctx.newPipeline(cmd, false)
			if err != nil {
				return err
			}
			defer closer()

			catalog := p.Catalog()
			names, err := catalog.ListAll()
			if err != nil {
				return err
			}
			sort.Strings(names)

			tapes := make([]listedTape, 0, len(names))
			for _, name := range names {
				entry := listedTape{Name: name}
				script, err := catalog.Resolve(name)
				if err != nil {
					entry.Error = err.Error()
				} else {
					entry.Path = displayPath(cfg.Root, script.Path)
					entry.Output = script.Output
				}
				tapes = append(tapes, entry)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, tapes)
			}

			out := cmd.OutOrStdout()
			if len(tapes) == 0 {
				fmt.Fprintf(out, "No tapes found in %s\n", displayPath(cfg.Root, catalog.Dir()))
				return nil
			}
			rows := make([][]string, 0, len(tapes))
			for _, entry := range tapes {
				output := entry.Output
				if entry.Error != "" {
					output = "(" + entry.Error + ")"
				}
				rows = append(rows, []string{entry.Name, output})
			}
			fmt.Fprint(out, renderTable([]string{"Tape", "Output"}, rows, nil))
			return nil
		},
	}
}
