// Package ingest converts per-sample quantification tables into a matrix
// file.
//
// Every input holds one sample: a feature column and a value column. All
// inputs must list the same feature set, in any order; the first input
// fixes the row order of the matrix.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/internal/matrix"
	"github.com/hupe1980/rnaget/model"
)

// ErrFeatureMismatch is returned when inputs disagree on the feature set.
var ErrFeatureMismatch = errors.New("ingest: feature sets differ")

// Input is one quantification file.
type Input struct {
	Path string
	// SampleID overrides the ID derived from the file name.
	SampleID string
}

// Options configures Load.
type Options struct {
	Preset        Preset
	FeatureColumn string
	ValueColumn   string
	Units         model.Units
	Study         string
	Version       string
	Compression   matrix.CompressionType
	RowsPerBlock  int
	Logger        *slog.Logger
}

// Summary describes a written matrix.
type Summary struct {
	Name     string
	Samples  []string
	Features int
	Units    model.Units
}

type sampleColumn struct {
	id     string
	values map[string]float64
}

// Load reads inputs and writes the matrix to store under name.
func Load(ctx context.Context, store blobstore.BlobStore, name string, inputs []Input, opts Options) (Summary, error) {
	if len(inputs) == 0 {
		return Summary{}, errors.New("ingest: no inputs")
	}
	p := opts.Preset
	if p.Name == "" {
		p, _ = LookupPreset(DefaultPreset)
	}
	if opts.FeatureColumn != "" {
		p.FeatureColumn = opts.FeatureColumn
	}
	if opts.ValueColumn != "" {
		p.ValueColumn = opts.ValueColumn
	}
	units := p.Units
	if opts.Units != model.UnitsUnspecified {
		units = opts.Units
	}
	if p.SampleID == nil {
		p.SampleID = Stem
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		features []string
		columns  []sampleColumn
		seen     = make(map[string]string, len(inputs))
	)
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		id := in.SampleID
		if id == "" {
			id = p.SampleID(in.Path)
		}
		if prev, ok := seen[id]; ok {
			return Summary{}, fmt.Errorf("ingest: sample %q from %s already read from %s", id, in.Path, prev)
		}
		seen[id] = in.Path

		order, values, err := readTable(in.Path, p)
		if err != nil {
			return Summary{}, err
		}
		if i == 0 {
			features = order
		} else if err := sameFeatures(features, values, in.Path); err != nil {
			return Summary{}, err
		}
		columns = append(columns, sampleColumn{id: id, values: values})
		logger.Debug("read quantification", slog.String("path", in.Path), slog.String("sample", id), slog.Int("features", len(order)))
	}

	samples := make([]string, len(columns))
	for i, c := range columns {
		samples[i] = c.id
	}

	wopts := []matrix.WriterOption{
		matrix.WithUnits(units),
		matrix.WithCompression(opts.Compression),
		matrix.WithMetadata(matrix.Metadata{Study: opts.Study, Source: p.Name, Version: opts.Version}),
	}
	if opts.RowsPerBlock > 0 {
		wopts = append(wopts, matrix.WithRowsPerBlock(opts.RowsPerBlock))
	}

	row := make([]float64, len(samples))
	err := matrix.Create(ctx, store, name, samples, func(w *matrix.Writer) error {
		for _, f := range features {
			for i, c := range columns {
				row[i] = c.values[f]
			}
			if err := w.Add(f, row); err != nil {
				return err
			}
		}
		return nil
	}, wopts...)
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: write %s: %w", name, err)
	}

	logger.Info("matrix written",
		slog.String("name", name),
		slog.Int("samples", len(samples)),
		slog.Int("features", len(features)),
		slog.String("units", units.String()),
	)
	return Summary{Name: name, Samples: samples, Features: len(features), Units: units}, nil
}

func sameFeatures(ref []string, values map[string]float64, path string) error {
	if len(values) != len(ref) {
		return fmt.Errorf("%w: %s has %d features, expected %d", ErrFeatureMismatch, path, len(values), len(ref))
	}
	for _, f := range ref {
		if _, ok := values[f]; !ok {
			return fmt.Errorf("%w: %s lacks feature %q", ErrFeatureMismatch, path, f)
		}
	}
	return nil
}

func readTable(path string, p Preset) ([]string, map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: %w", err)
	}
	defer f.Close()

	order, values, err := parseTable(f, p)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: %s: %w", filepath.Base(path), err)
	}
	return order, values, nil
}

// parseTable reads one tab-separated quantification table.
func parseTable(r io.Reader, p Preset) ([]string, map[string]float64, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	featureCol, valueCol := -1, -1
	if p.Header {
		head, err := cr.Read()
		if err != nil {
			return nil, nil, fmt.Errorf("read header: %w", err)
		}
		for i, h := range head {
			switch strings.TrimSpace(h) {
			case p.FeatureColumn:
				featureCol = i
			case p.ValueColumn:
				valueCol = i
			}
		}
		if featureCol < 0 {
			return nil, nil, fmt.Errorf("missing %s column", p.FeatureColumn)
		}
		if valueCol < 0 {
			return nil, nil, fmt.Errorf("missing %s column", p.ValueColumn)
		}
	} else {
		var err error
		if featureCol, err = strconv.Atoi(p.FeatureColumn); err != nil {
			return nil, nil, fmt.Errorf("feature column %q is not an index", p.FeatureColumn)
		}
		if valueCol, err = strconv.Atoi(p.ValueColumn); err != nil {
			return nil, nil, fmt.Errorf("value column %q is not an index", p.ValueColumn)
		}
	}

	var order []string
	values := make(map[string]float64)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(rec) <= max(featureCol, valueCol) {
			return nil, nil, fmt.Errorf("line %d: %d columns", line, len(rec))
		}
		feature := rec[featureCol]
		if _, dup := values[feature]; dup {
			return nil, nil, fmt.Errorf("line %d: duplicate feature %q", line, feature)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valueCol]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		order = append(order, feature)
		values[feature] = v
	}
	return order, values, nil
}

// Discover lists the files in dir ending in ext, sorted by name.
func Discover(dir, ext string) ([]Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	var inputs []Input
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		inputs = append(inputs, Input{Path: filepath.Join(dir, e.Name())})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("ingest: no %s files in %s", ext, dir)
	}
	return inputs, nil
}
