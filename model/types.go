package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Units is the quantification scale of matrix values.
type Units uint8

const (
	// UnitsUnspecified means "keep the source units" when used in a FilterSpec.
	UnitsUnspecified Units = iota
	// UnitsRawCount is an unnormalized read/fragment count.
	UnitsRawCount
	// UnitsTPM is transcripts per million.
	UnitsTPM
	// UnitsFPKM is fragments per kilobase per million mapped fragments.
	UnitsFPKM
	// UnitsRPKM is reads per kilobase per million mapped reads.
	UnitsRPKM
	// UnitsCPM is counts per million.
	UnitsCPM
)

var unitNames = [...]string{
	UnitsUnspecified: "unspecified",
	UnitsRawCount:    "raw-count",
	UnitsTPM:         "TPM",
	UnitsFPKM:        "FPKM",
	UnitsRPKM:        "RPKM",
	UnitsCPM:         "CPM",
}

// String returns the canonical name of the units.
func (u Units) String() string {
	if int(u) < len(unitNames) {
		return unitNames[u]
	}
	return fmt.Sprintf("Units(%d)", u)
}

// Valid reports whether u is a known unit tag.
func (u Units) Valid() bool {
	return int(u) < len(unitNames)
}

// ParseUnits parses a unit name. Matching is case-insensitive and accepts the
// spellings found in quantification tool output ("counts", "est_counts", ...).
func ParseUnits(s string) (Units, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unspecified":
		return UnitsUnspecified, nil
	case "raw-count", "raw_count", "rawcount", "count", "counts", "est_counts", "numreads":
		return UnitsRawCount, nil
	case "tpm":
		return UnitsTPM, nil
	case "fpkm":
		return UnitsFPKM, nil
	case "rpkm":
		return UnitsRPKM, nil
	case "cpm":
		return UnitsCPM, nil
	default:
		return UnitsUnspecified, fmt.Errorf("unknown units %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u Units) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Units) UnmarshalText(text []byte) error {
	v, err := ParseUnits(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Format is the output encoding of a materialized query result.
type Format string

const (
	// FormatTSV is dense tab-delimited text.
	FormatTSV Format = "tsv"
	// FormatCSV is dense comma-delimited text.
	FormatCSV Format = "csv"
	// FormatSparse lists only non-zero cells as offset:value pairs.
	FormatSparse Format = "sparse"
	// FormatBinary is a packed little-endian float64 stream.
	FormatBinary Format = "binary"
	// FormatJSON is JSON lines: one header object, then one object per row.
	FormatJSON Format = "json"
)

// Formats lists every supported output format.
func Formats() []Format {
	return []Format{FormatTSV, FormatCSV, FormatSparse, FormatBinary, FormatJSON}
}

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	for _, v := range Formats() {
		if f == v {
			return true
		}
	}
	return false
}

// ParseFormat parses a format tag case-insensitively. "dense" and "txt" are
// accepted as aliases for tsv.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "dense", "txt", "tab":
		return FormatTSV, nil
	case "jsonl", "ndjson":
		return FormatJSON, nil
	}
	if !f.Valid() {
		return "", fmt.Errorf("unknown format %q", s)
	}
	return f, nil
}

// Row is one feature with its values aligned to the selected samples.
type Row struct {
	Feature string
	Values  []float64
}

// FilterSpec selects a sub-matrix.
//
// A nil ID slice selects every row (or column); a non-nil empty slice selects
// none. Duplicate IDs are ignored after their first occurrence.
type FilterSpec struct {
	FeatureIDs []string
	SampleIDs  []string

	// MinExpression drops rows whose selected values are all below it.
	MinExpression *float64
	// MaxExpression drops rows whose selected values are all above it.
	MaxExpression *float64

	// FeatureThresholds keeps only the samples in which every listed feature
	// lies inside its bounds. Bounds apply to source values.
	FeatureThresholds []FeatureThreshold

	// Units is the requested output unit. UnitsUnspecified keeps the source units.
	Units Units
}

// FeatureThreshold bounds the value of one feature. A nil bound is open.
type FeatureThreshold struct {
	FeatureID string
	Min       *float64
	Max       *float64
}

// ParseThresholdArray parses "feature,value,feature,value" pairs into
// thresholds. isMax selects which bound the values set.
func ParseThresholdArray(s string, isMax bool) ([]FeatureThreshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("threshold array %q: want feature,value pairs", s)
	}
	out := make([]FeatureThreshold, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		id := strings.TrimSpace(parts[i])
		if id == "" {
			return nil, fmt.Errorf("threshold array %q: empty feature ID", s)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return nil, fmt.Errorf("threshold array %q: %w", s, err)
		}
		t := FeatureThreshold{FeatureID: id}
		if isMax {
			t.Max = Float(v)
		} else {
			t.Min = Float(v)
		}
		out = append(out, t)
	}
	return out, nil
}

// Float returns a pointer to v. It is a convenience for FilterSpec thresholds.
func Float(v float64) *float64 {
	return &v
}
