package query

import (
	"fmt"

	"github.com/hupe1980/rnaget/model"
)

const perMillion = 1e6

// Conversion maps a source value of column col to the target units.
type Conversion func(v float64, col int) float64

func identity(v float64, _ int) float64 { return v }

// Convertible reports whether values in from can be expressed in to.
func Convertible(from, to model.Units) bool {
	_, err := NewConversion(from, to, nil)
	return err == nil
}

// NewConversion returns the conversion from → to. totals are the per-column
// sums of the source matrix; a zero column total converts to 0.
//
// Supported: identity, FPKM ↔ RPKM, FPKM/RPKM → TPM and raw-count → CPM.
// Everything else fails with ErrUnitMismatch.
func NewConversion(from, to model.Units, totals []float64) (Conversion, error) {
	if to == model.UnitsUnspecified || from == to {
		return identity, nil
	}

	perMillionOfTotal := func(v float64, col int) float64 {
		t := totals[col]
		if t == 0 {
			return 0
		}
		return v / t * perMillion
	}

	switch {
	case isLengthNormalized(from) && isLengthNormalized(to):
		return identity, nil
	case isLengthNormalized(from) && to == model.UnitsTPM:
		return perMillionOfTotal, nil
	case from == model.UnitsRawCount && to == model.UnitsCPM:
		return perMillionOfTotal, nil
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrUnitMismatch, from, to)
}

func isLengthNormalized(u model.Units) bool {
	return u == model.UnitsFPKM || u == model.UnitsRPKM
}
