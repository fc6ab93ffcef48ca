// Package index maps matrix row and column labels to offsets.
//
// A Labels value is created per open matrix file. The label → offset map is
// built on first lookup and reused for the lifetime of the handle.
package index
