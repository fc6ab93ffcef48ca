package testutil

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/internal/matrix"
	"github.com/hupe1980/rnaget/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Dataset is an in-memory expression matrix.
type Dataset struct {
	Features []string
	Samples  []string
	Units    model.Units
	// Values holds one row per feature.
	Values [][]float64
}

// Dataset generates a matrix of log-normal expression values in TPM.
// zeroRate is the probability that a cell is zero.
// Uses a single backing array for efficiency.
func (r *RNG) Dataset(features, samples int, zeroRate float64) *Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds := &Dataset{
		Features: Labels("ENSG", features),
		Samples:  Labels("SAMPLE", samples),
		Units:    model.UnitsTPM,
		Values:   make([][]float64, features),
	}

	data := make([]float64, features*samples)
	for i := range features {
		row := data[i*samples : (i+1)*samples]
		for j := range row {
			if r.rand.Float64() < zeroRate {
				continue
			}
			// Round to 3 decimals so text formats reproduce values exactly.
			row[j] = math.Round(math.Exp(r.rand.NormFloat64()*2)*1000) / 1000
		}
		ds.Values[i] = row
	}
	return ds
}

// Labels returns n distinct, zero-padded labels with the given prefix.
func Labels(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%011d", prefix, i)
	}
	return out
}

// Slice returns the rows a query for features and samples must produce
// without thresholds or unit conversion. Nil selects everything.
func (d *Dataset) Slice(features, samples []string) []model.Row {
	rowIdx := positions(d.Features, features)
	colIdx := positions(d.Samples, samples)

	out := make([]model.Row, 0, len(rowIdx))
	if len(colIdx) == 0 {
		return out
	}
	for _, i := range rowIdx {
		values := make([]float64, len(colIdx))
		for k, j := range colIdx {
			values[k] = d.Values[i][j]
		}
		out = append(out, model.Row{Feature: d.Features[i], Values: values})
	}
	return out
}

// positions maps ids to their indices in labels, keeping request order and
// dropping repeats. Nil ids select every label.
func positions(labels, ids []string) []int {
	if ids == nil {
		out := make([]int, len(labels))
		for i := range out {
			out[i] = i
		}
		return out
	}
	at := make(map[string]int, len(labels))
	for i, l := range labels {
		at[l] = i
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if i, ok := at[id]; ok {
			out = append(out, i)
		}
	}
	return out
}

// WriteMatrix stores d as a matrix file named name.
func WriteMatrix(ctx context.Context, store blobstore.BlobStore, name string, d *Dataset, opts ...matrix.WriterOption) error {
	opts = append([]matrix.WriterOption{matrix.WithUnits(d.Units)}, opts...)
	return matrix.Create(ctx, store, name, d.Samples, func(w *matrix.Writer) error {
		for i, f := range d.Features {
			if err := w.Add(f, d.Values[i]); err != nil {
				return err
			}
		}
		return nil
	}, opts...)
}
