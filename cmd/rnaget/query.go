package main

import (
	"fmt"
	"io"
	"os"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/rnaget"
	"github.com/hupe1980/rnaget/model"
)

var queryCmd = &cobra.Command{
	Use:   "query <expression-id>",
	Short: "Slice a matrix and issue a download ticket",
	Long: `Query selects features and samples from a matrix, optionally keeps only rows
with a value inside [--min, --max], converts units and stores the encoded
result. --min-feature and --max-feature keep only the samples in which every
listed feature passes its bound. The ticket is printed as JSON. With --output the artifact is also
downloaded right away.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringSlice("features", nil, "feature IDs to select (default: all)")
	f.StringSlice("samples", nil, "sample IDs to select (default: all)")
	f.Bool("no-samples", false, "select no samples")
	f.Float64("min", 0, "keep rows with at least one value >= min")
	f.Float64("max", 0, "keep rows with at least one value <= max")
	f.String("min-feature", "", "keep samples where each feature is >= its value (feature,value,...)")
	f.String("max-feature", "", "keep samples where each feature is <= its value (feature,value,...)")
	f.String("units", "", "output units (default: stored units)")
	f.String("format", string(model.FormatTSV), "output format")
	f.Int("precision", -1, "decimals in text formats (-1 = shortest exact)")
	f.Bool("file", false, "treat the argument as a matrix name instead of an expression ID")
	f.StringP("output", "o", "", "download the artifact to this file (- for stdout)")

	rootCmd.AddCommand(queryCmd)
}

// filterFromFlags builds the filter. Unset flags leave selections nil.
func filterFromFlags(cmd *cobra.Command) (model.FilterSpec, error) {
	f := cmd.Flags()
	var spec model.FilterSpec

	if f.Changed("features") {
		spec.FeatureIDs, _ = f.GetStringSlice("features")
		if spec.FeatureIDs == nil {
			spec.FeatureIDs = []string{}
		}
	}
	if f.Changed("samples") {
		spec.SampleIDs, _ = f.GetStringSlice("samples")
		if spec.SampleIDs == nil {
			spec.SampleIDs = []string{}
		}
	}
	if none, _ := f.GetBool("no-samples"); none {
		spec.SampleIDs = []string{}
	}
	if f.Changed("min") {
		v, _ := f.GetFloat64("min")
		spec.MinExpression = model.Float(v)
	}
	if f.Changed("max") {
		v, _ := f.GetFloat64("max")
		spec.MaxExpression = model.Float(v)
	}

	for _, name := range []string{"min-feature", "max-feature"} {
		raw, _ := f.GetString(name)
		ts, err := model.ParseThresholdArray(raw, name == "max-feature")
		if err != nil {
			return spec, fmt.Errorf("--%s: %w", name, err)
		}
		spec.FeatureThresholds = append(spec.FeatureThresholds, ts...)
	}

	unitsFlag, _ := f.GetString("units")
	units, err := model.ParseUnits(unitsFlag)
	if err != nil {
		return spec, err
	}
	spec.Units = units
	return spec, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	spec, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := model.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	precision, _ := cmd.Flags().GetInt("precision")

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := e.service(ctx, rnaget.WithPrecision(precision))
	if err != nil {
		return err
	}
	defer svc.Close()

	var t *rnaget.Ticket
	if byFile, _ := cmd.Flags().GetBool("file"); byFile {
		t, err = svc.QueryFile(ctx, matrixPath(args[0]), spec, format)
	} else {
		t, err = svc.Query(ctx, args[0], spec, format)
	}
	if err != nil {
		return err
	}

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		return download(cmd, svc, t.ID, out)
	}

	enc := gojson.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ticketView{
		ID:          t.ID,
		Source:      t.Source,
		Format:      t.Format,
		ContentType: t.ContentType,
		Size:        t.Size,
		ExpiresAt:   t.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Cached:      t.Cached,
	})
}

type ticketView struct {
	ID          string       `json:"ticket"`
	Source      string       `json:"source"`
	Format      model.Format `json:"format"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	ExpiresAt   string       `json:"expires_at"`
	Cached      bool         `json:"cached"`
}

// download copies the artifact of ticketID to out ("-" is stdout).
func download(cmd *cobra.Command, svc *rnaget.Service, ticketID, out string) (err error) {
	dl, err := svc.Download(cmd.Context(), ticketID)
	if err != nil {
		return err
	}
	defer dl.Body.Close()

	var w io.Writer = cmd.OutOrStdout()
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	n, err := io.Copy(w, dl.Body)
	if err != nil {
		return fmt.Errorf("download %s: %w", ticketID, err)
	}
	if out != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d bytes (%s)\n", out, n, dl.ContentType)
	}
	return nil
}
