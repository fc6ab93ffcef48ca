package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync/atomic"

	"github.com/hupe1980/rnaget/internal/matrix"
	"github.com/hupe1980/rnaget/model"
)

var (
	// ErrInvalidFilter is returned for semantically invalid filter specs.
	ErrInvalidFilter = errors.New("query: invalid filter")
	// ErrUnitMismatch is returned when no conversion between units exists.
	ErrUnitMismatch = errors.New("query: unit mismatch")
	// ErrConsumed is yielded when a result is iterated a second time.
	ErrConsumed = errors.New("query: result already consumed")
)

// Matrix is the read surface a query needs. *matrix.File implements it.
type Matrix interface {
	Units() model.Units
	SampleIDs() []string
	FeatureIDs() []string
	ColumnTotals() []float64
	ResolveFeatures(ids []string) ([]int, error)
	ResolveSamples(ids []string) ([]int, error)
	ReadRows(ctx context.Context, offsets []int) iter.Seq2[matrix.RowData, error]
}

// Validate checks the semantic validity of spec.
func Validate(spec model.FilterSpec) error {
	for name, p := range map[string]*float64{"min_expression": spec.MinExpression, "max_expression": spec.MaxExpression} {
		if p != nil && (math.IsNaN(*p) || math.IsInf(*p, 0)) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidFilter, name)
		}
	}
	if spec.MinExpression != nil && spec.MaxExpression != nil && *spec.MinExpression > *spec.MaxExpression {
		return fmt.Errorf("%w: min_expression %g > max_expression %g", ErrInvalidFilter, *spec.MinExpression, *spec.MaxExpression)
	}
	if !spec.Units.Valid() {
		return fmt.Errorf("%w: unknown units %d", ErrInvalidFilter, spec.Units)
	}
	for _, t := range spec.FeatureThresholds {
		if err := validateThreshold(t); err != nil {
			return err
		}
	}
	return nil
}

func validateThreshold(t model.FeatureThreshold) error {
	if t.FeatureID == "" {
		return fmt.Errorf("%w: feature threshold without feature ID", ErrInvalidFilter)
	}
	if t.Min == nil && t.Max == nil {
		return fmt.Errorf("%w: feature threshold %s has no bound", ErrInvalidFilter, t.FeatureID)
	}
	for _, p := range []*float64{t.Min, t.Max} {
		if p != nil && (math.IsNaN(*p) || math.IsInf(*p, 0)) {
			return fmt.Errorf("%w: feature threshold %s must be finite", ErrInvalidFilter, t.FeatureID)
		}
	}
	if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
		return fmt.Errorf("%w: feature threshold %s: min %g > max %g", ErrInvalidFilter, t.FeatureID, *t.Min, *t.Max)
	}
	return nil
}

// Result is a planned query. Rows are read when Rows is iterated.
type Result struct {
	m        Matrix
	rows     []int
	cols     []int
	samples  []string
	units    model.Units
	convert  Conversion
	min, max *float64
	consumed atomic.Bool
}

// Run plans spec against m. All IDs are resolved before returning.
func Run(ctx context.Context, m Matrix, spec model.FilterSpec) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(spec); err != nil {
		return nil, err
	}

	target := spec.Units
	if target == model.UnitsUnspecified {
		target = m.Units()
	}
	convert, err := NewConversion(m.Units(), target, m.ColumnTotals())
	if err != nil {
		return nil, err
	}

	rows, err := m.ResolveFeatures(spec.FeatureIDs)
	if err != nil {
		return nil, err
	}
	cols, err := m.ResolveSamples(spec.SampleIDs)
	if err != nil {
		return nil, err
	}
	if len(spec.FeatureThresholds) > 0 {
		if cols, err = filterSamples(ctx, m, spec.FeatureThresholds, cols); err != nil {
			return nil, err
		}
	}

	all := m.SampleIDs()
	samples := make([]string, len(cols))
	for i, c := range cols {
		samples[i] = all[c]
	}

	return &Result{
		m:       m,
		rows:    rows,
		cols:    cols,
		samples: samples,
		units:   target,
		convert: convert,
		min:     spec.MinExpression,
		max:     spec.MaxExpression,
	}, nil
}

// FeatureCount returns the number of planned rows, before thresholds.
func (r *Result) FeatureCount() int { return len(r.rows) }

// SampleIDs returns the selected sample labels in output column order.
func (r *Result) SampleIDs() []string { return r.samples }

// Units returns the units of the emitted values.
func (r *Result) Units() model.Units { return r.units }

func within(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

func (r *Result) keep(source []float64) bool {
	if r.min == nil && r.max == nil {
		return true
	}
	for _, c := range r.cols {
		if within(source[c], r.min, r.max) {
			return true
		}
	}
	return false
}

// filterSamples keeps the columns in which every threshold holds. The
// thresholded features are resolved first, then only their rows are read.
func filterSamples(ctx context.Context, m Matrix, ts []model.FeatureThreshold, cols []int) ([]int, error) {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.FeatureID
	}
	offsets, err := m.ResolveFeatures(ids)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return cols, nil
	}

	values := make(map[string][]float64, len(offsets))
	for row, err := range m.ReadRows(ctx, offsets) {
		if err != nil {
			return nil, err
		}
		values[row.Feature] = row.Values
	}

	kept := make([]int, 0, len(cols))
	for _, c := range cols {
		ok := true
		for _, t := range ts {
			if !within(values[t.FeatureID][c], t.Min, t.Max) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// Rows yields the selected rows in request order. It is single-pass: a
// second iteration yields ErrConsumed.
func (r *Result) Rows(ctx context.Context) iter.Seq2[model.Row, error] {
	return func(yield func(model.Row, error) bool) {
		if r.consumed.Swap(true) {
			yield(model.Row{}, ErrConsumed)
			return
		}
		// A row without columns is never emitted.
		if len(r.cols) == 0 || len(r.rows) == 0 {
			return
		}
		for row, err := range r.m.ReadRows(ctx, r.rows) {
			if err != nil {
				yield(model.Row{}, err)
				return
			}
			if !r.keep(row.Values) {
				continue
			}
			values := make([]float64, len(r.cols))
			for i, c := range r.cols {
				values[i] = r.convert(row.Values[c], c)
			}
			if !yield(model.Row{Feature: row.Feature, Values: values}, nil) {
				return
			}
		}
	}
}

// Collect drains a result into memory. Intended for tests and small results.
func Collect(ctx context.Context, r *Result) ([]model.Row, error) {
	var out []model.Row
	for row, err := range r.Rows(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
