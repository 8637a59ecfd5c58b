package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tongbuying/internal/maintenance"
)

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report member counts and the active-vs-expired split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := maintenance.CollectStats(opts.file, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total members:  %d\n", stats.Total)
			fmt.Fprintf(out, "Active members: %d\n", stats.Active)
			fmt.Fprintf(out, "Expired members: %d\n", stats.Expired)
			if stats.LastUpdated != "" {
				fmt.Fprintf(out, "Last updated:   %s\n", stats.LastUpdated)
			}
			return nil
		},
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every record for required fields and list-typed fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			violations, err := maintenance.Validate(opts.file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(violations) == 0 {
				fmt.Fprintln(out, "Data validation passed")
				return nil
			}
			for _, v := range violations {
				fmt.Fprintln(out, v.String())
			}
			return fmt.Errorf("data validation failed: %d violation(s)", len(violations))
		},
	}
}
