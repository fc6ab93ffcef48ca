// Package hash provides the CRC32-Castagnoli checksums used by matrix files.
//
// Matrix files checksum their label/metadata sections once at open time and
// every value block when it is read, so corruption surfaces as a format error
// instead of silently wrong expression values.
//
//	sum := hash.CRC32C(block)
//
//	h := hash.NewCRC32C()
//	h.Write(features)
//	h.Write(samples)
//	sum := h.Sum32()
package hash
