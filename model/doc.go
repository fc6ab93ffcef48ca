// Package model defines core types used throughout rnaget.
//
// # Quantification Types
//
//   - Units: quantification scale of matrix values (raw count, TPM, FPKM, ...)
//   - Format: output encoding of a materialized query result
//
// # Query Types
//
//   - FilterSpec: row/column selection and thresholds for one request
//   - Row: one feature with its values aligned to the selected samples
//
// A FilterSpec distinguishes a nil ID set (select everything) from an empty
// one (select nothing):
//
//	spec := model.FilterSpec{
//	    FeatureIDs:    []string{"ENSG00000141510", "ENSG00000012048"},
//	    MinExpression: model.Float(0.5),
//	    Units:         model.UnitsTPM,
//	}
package model
