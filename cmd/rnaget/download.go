package main

import (
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <ticket>",
	Short: "Fetch the artifact of a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		out, _ := cmd.Flags().GetString("output")
		return download(cmd, svc, args[0], out)
	},
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "-", "destination file (- for stdout)")

	rootCmd.AddCommand(downloadCmd)
}
