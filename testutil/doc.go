// Package testutil provides testing utilities for rnaget.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating synthetic expression matrices, writing
// them to a blob store, and computing the exact slice a query must return.
//
// # Synthetic Matrices
//
//	rng := testutil.NewRNG(seed)
//	ds := rng.Dataset(1000, 24, 0.3) // 30% zero cells
//	_ = testutil.WriteMatrix(ctx, store, "m.rnam", ds)
//
// # Ground Truth
//
//	rows := ds.Slice(features, samples)
package testutil
