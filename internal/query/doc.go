// Package query evaluates a FilterSpec against a matrix.
//
// Run validates the spec, checks the unit conversion and resolves every
// requested feature and sample before any row is read, so an unknown ID or an
// unsupported conversion never yields a partial result. Rows are then produced
// lazily, in request order, as a single-pass sequence.
//
// Threshold semantics are row-level: a cell passes when it lies within
// [MinExpression, MaxExpression] (each bound only when set) and a row is kept
// when at least one of its selected cells passes. Thresholds apply to source
// values, before unit conversion.
//
// FeatureThresholds narrow the samples instead: a sample stays selected when
// every listed feature lies within its bounds in that sample. Only the rows of
// the listed features are read for this, at plan time.
package query
