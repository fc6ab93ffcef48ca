package ingest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/rnaget/model"
)

// Preset describes the layout of one quantification tool's output.
type Preset struct {
	Name string
	// FeatureColumn and ValueColumn name header columns. Without a header
	// they are zero-based column indexes.
	FeatureColumn string
	ValueColumn   string
	Header        bool
	Units         model.Units
	Extension     string
	// SampleID derives a sample ID from a file name.
	SampleID func(path string) string
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func prefixBeforeUnderscore(path string) string {
	base := filepath.Base(path)
	id, _, _ := strings.Cut(base, "_")
	return id
}

var presets = map[string]Preset{
	"kallisto": {
		Name: "kallisto", FeatureColumn: "target_id", ValueColumn: "tpm",
		Header: true, Units: model.UnitsTPM, Extension: ".tsv", SampleID: Stem,
	},
	"salmon": {
		Name: "salmon", FeatureColumn: "Name", ValueColumn: "TPM",
		Header: true, Units: model.UnitsTPM, Extension: ".sf", SampleID: Stem,
	},
	"cufflinks": {
		Name: "cufflinks", FeatureColumn: "tracking_id", ValueColumn: "FPKM",
		Header: true, Units: model.UnitsFPKM, Extension: ".tsv", SampleID: Stem,
	},
	"rsem": {
		Name: "rsem", FeatureColumn: "gene_id", ValueColumn: "TPM",
		Header: true, Units: model.UnitsTPM, Extension: ".tsv", SampleID: Stem,
	},
	"gsc": {
		Name: "gsc", FeatureColumn: "0", ValueColumn: "14",
		Header: false, Units: model.UnitsRPKM,
		Extension: "stranded_collapsed_coverage.transcript.normalized",
		SampleID:  prefixBeforeUnderscore,
	},
}

// DefaultPreset is used when no preset is named.
const DefaultPreset = "kallisto"

// LookupPreset returns a built-in preset by name.
func LookupPreset(name string) (Preset, error) {
	if name == "" {
		name = DefaultPreset
	}
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return Preset{}, fmt.Errorf("ingest: unknown preset %q (known: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetNames lists the built-in presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
