package main

import (
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rnaget/internal/matrix"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <expression-id|matrix>",
	Short: "Show the layout and metadata of a matrix",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Bool("verify", false, "verify every block checksum")
	inspectCmd.Flags().Bool("labels", false, "list sample IDs")

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	path, err := e.catalog.ResolveExpression(ctx, args[0])
	if errors.Is(err, fs.ErrNotExist) {
		path = matrixPath(args[0])
	} else if err != nil {
		return err
	}

	verify, _ := cmd.Flags().GetBool("verify")
	f, err := matrix.OpenStore(ctx, e.matrices, path, matrix.WithVerifyChecksum(verify))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	md := f.Metadata()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "path\t%s\n", path)
	fmt.Fprintf(tw, "identity\t%s\n", f.Identity())
	fmt.Fprintf(tw, "size\t%d\n", f.Size())
	fmt.Fprintf(tw, "features\t%d\n", f.Rows())
	fmt.Fprintf(tw, "samples\t%d\n", f.Cols())
	fmt.Fprintf(tw, "units\t%s\n", f.Units())
	fmt.Fprintf(tw, "compression\t%s\n", f.Compression())
	fmt.Fprintf(tw, "rows per block\t%d\n", f.Header().RowsPerBlock)
	fmt.Fprintf(tw, "metadata codec\t%s\n", f.MetadataCodec())
	fmt.Fprintf(tw, "study\t%s\n", md.Study)
	fmt.Fprintf(tw, "source\t%s\n", md.Source)
	fmt.Fprintf(tw, "version\t%s\n", md.Version)
	if verify {
		fmt.Fprintf(tw, "checksums\tok\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if labels, _ := cmd.Flags().GetBool("labels"); labels {
		totals := f.ColumnTotals()
		for i, s := range f.SampleIDs() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%g\n", s, totals[i])
		}
	}
	return nil
}
