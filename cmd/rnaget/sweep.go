package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired tickets and their artifacts",
	Long: `Sweep removes expired tickets from the catalog and deletes their artifacts.
Loading the catalog already drops tickets that expired before the command
started; the count covers those found afterwards.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := newEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		svc, err := e.service(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		n, err := svc.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired tickets\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
