// memberctl is the offline maintenance tool for the members data file:
// backup, restore, stats, and validate. It operates on the same JSON
// document format the server persists.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type options struct {
	file string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "memberctl",
		Short:         "Maintenance tool for the members data file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}

	defaultFile := os.Getenv("DATA_FILE")
	if defaultFile == "" {
		defaultFile = "data/members.json"
	}
	root.PersistentFlags().StringVar(&opts.file, "file", defaultFile,
		"Path to the members data file (default: $DATA_FILE env → data/members.json)")

	root.AddCommand(
		newBackupCmd(opts),
		newRestoreCmd(opts),
		newStatsCmd(opts),
		newValidateCmd(opts),
	)
	return root
}
