package ticket

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/hupe1980/rnaget/model"
)

type normalizedRequest struct {
	Matrix   string   `json:"matrix"`
	Features []string `json:"features"`
	Samples  []string `json:"samples"`
	Min      string   `json:"min"`
	Max      string   `json:"max"`
	Units    string   `json:"units"`
	Format   string   `json:"format"`

	Thresholds []normalizedThreshold `json:"thresholds,omitempty"`
}

type normalizedThreshold struct {
	Feature string `json:"feature"`
	Min     string `json:"min"`
	Max     string `json:"max"`
}

// Fingerprint returns the cache key of a query against the matrix with the
// given identity.
//
// Repeated IDs are dropped after their first occurrence. Order is kept, since
// it determines the output order. A nil ID set and an empty one differ.
// Feature thresholds are a conjunction, so they are sorted and repeated
// entries dropped.
func Fingerprint(identity string, spec model.FilterSpec, f model.Format) string {
	n := normalizedRequest{
		Matrix:   identity,
		Features: dedupe(spec.FeatureIDs),
		Samples:  dedupe(spec.SampleIDs),
		Min:      threshold(spec.MinExpression),
		Max:      threshold(spec.MaxExpression),
		Units:    spec.Units.String(),
		Format:   string(f),

		Thresholds: featureThresholds(spec.FeatureThresholds),
	}
	// Marshaling a struct of strings cannot fail.
	data, _ := json.Marshal(n)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func threshold(p *float64) string {
	if p == nil {
		return ""
	}
	v := *p
	if v == 0 {
		v = 0 // -0 and +0 select the same rows
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func featureThresholds(ts []model.FeatureThreshold) []normalizedThreshold {
	if len(ts) == 0 {
		return nil
	}
	out := make([]normalizedThreshold, len(ts))
	for i, t := range ts {
		out[i] = normalizedThreshold{Feature: t.FeatureID, Min: threshold(t.Min), Max: threshold(t.Max)}
	}
	slices.SortFunc(out, func(a, b normalizedThreshold) int {
		return cmp.Or(cmp.Compare(a.Feature, b.Feature), cmp.Compare(a.Min, b.Min), cmp.Compare(a.Max, b.Max))
	})
	return slices.Compact(out)
}
