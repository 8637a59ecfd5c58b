package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tongbuying/internal/maintenance"
)

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Create a timestamped copy of the data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backupPath, err := maintenance.Backup(opts.file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", backupPath)
			return nil
		},
	}
}

func newRestoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Overwrite the data file from a named backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := maintenance.Restore(opts.file, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Data restored from %s\n", args[0])
			return nil
		},
	}
}
