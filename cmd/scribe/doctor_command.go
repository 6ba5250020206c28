package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/preflight"
	"scribe/internal/staging"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var checkLLM bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external tools and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{CheckLLM: checkLLM})
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, okLabel(r.Passed, colorize), r.Detail})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				title:   "Checks",
				headers: []string{"Check", "Result", "Detail"},
				wrap:    map[int]int{2: 70},
			}, rows))

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			depRows := make([][]string, 0, len(statuses))
			missingRequired := 0
			for _, s := range statuses {
				required := "required"
				if s.Optional {
					required = "optional"
				}
				detail := s.Detail
				if s.Available && detail == "" {
					detail = s.Path
				}
				if !s.Available && !s.Optional {
					missingRequired++
				}
				depRows = append(depRows, []string{s.Name, s.Command, required, okLabel(s.Available || s.Optional, colorize), detail})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				title:   "External tools",
				headers: []string{"Tool", "Command", "Need", "Result", "Detail"},
				wrap:    map[int]int{4: 60},
			}, depRows))

			if dirs, err := staging.List(cfg.ScratchDir()); err == nil && len(dirs) > 0 {
				var total int64
				for _, d := range dirs {
					total += d.Size
				}
				fmt.Fprintf(out, "Scratch: %d work directories (%d bytes) under %s\n", len(dirs), total, cfg.ScratchDir())
			}

			failed := len(preflight.Failed(results)) + missingRequired
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkLLM, "check-llm", false, "Send a live request to the extraction model")
	return cmd
}
