package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rnaget/internal/ingest"
	"github.com/hupe1980/rnaget/internal/matrix"
	"github.com/hupe1980/rnaget/internal/sqlstore"
	"github.com/hupe1980/rnaget/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <expression-id> <file-or-dir>...",
	Short: "Build a matrix from per-sample quantification files",
	Long: `Ingest reads one quantification file per sample, joins them on the feature
column and writes a matrix file. Directories are scanned for files with the
preset's extension. The matrix is registered in the catalog under the given
expression ID, and tickets issued for an older matrix of the same name are
dropped.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.String("preset", "kallisto", "input layout: "+strings.Join(ingest.PresetNames(), ", "))
	f.String("name", "", "matrix name (default: the expression ID)")
	f.String("feature-column", "", "override the preset's feature column")
	f.String("value-column", "", "override the preset's value column")
	f.String("units", "", "override the preset's units")
	f.String("study", "", "study recorded in the matrix metadata")
	f.String("data-version", "", "version recorded in the matrix metadata")
	f.String("compression", "zstd", "block compression: none, lz4, zstd")
	f.Int("rows-per-block", 0, "rows per value block (0 = default)")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f := cmd.Flags()

	presetName, _ := f.GetString("preset")
	preset, err := ingest.LookupPreset(presetName)
	if err != nil {
		return err
	}
	unitsFlag, _ := f.GetString("units")
	units, err := model.ParseUnits(unitsFlag)
	if err != nil {
		return err
	}
	compressionFlag, _ := f.GetString("compression")
	compression, err := matrix.ParseCompression(compressionFlag)
	if err != nil {
		return err
	}

	inputs, err := collectInputs(args[1:], preset.Extension)
	if err != nil {
		return err
	}

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	id := args[0]
	name, _ := f.GetString("name")
	if name == "" {
		name = id
	}
	path := matrixPath(name)

	opts := ingest.Options{
		Preset:      preset,
		Units:       units,
		Compression: compression,
		Logger:      e.logger.Logger,
	}
	opts.FeatureColumn, _ = f.GetString("feature-column")
	opts.ValueColumn, _ = f.GetString("value-column")
	opts.Study, _ = f.GetString("study")
	opts.Version, _ = f.GetString("data-version")
	opts.RowsPerBlock, _ = f.GetInt("rows-per-block")

	sum, err := ingest.Load(ctx, e.base, path, inputs, opts)
	if err != nil {
		return err
	}

	if err := e.catalog.RegisterExpression(ctx, sqlstore.Expression{
		ID:      id,
		Path:    path,
		Study:   opts.Study,
		Units:   sum.Units,
		Created: time.Now(),
	}); err != nil {
		return err
	}

	svc, err := e.service(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	if err := svc.Invalidate(ctx, path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d features\t%d samples\t%s\n",
		id, path, sum.Features, len(sum.Samples), sum.Units)
	return nil
}

// collectInputs expands directories into the files they hold.
func collectInputs(args []string, ext string) ([]ingest.Input, error) {
	var inputs []ingest.Input
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			inputs = append(inputs, ingest.Input{Path: arg})
			continue
		}
		found, err := ingest.Discover(arg, ext)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, found...)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files with extension %q", ext)
	}
	return inputs, nil
}
