// Package matrix implements the on-disk expression matrix container.
//
// A matrix file holds one features × samples matrix of float64 values together
// with its label sequences, per-column totals and a metadata document.
//
// Layout (little endian):
//
//	+----------------------+ 0
//	| header (128 bytes)   |
//	+----------------------+ FeatureOffset
//	| feature labels       |  uvarint len + bytes, per label
//	+----------------------+ SampleOffset
//	| sample labels        |
//	+----------------------+ MetadataOffset
//	| metadata             |  uvarint codec name len + name + document
//	+----------------------+ TotalsOffset
//	| column totals        |  cols × float64
//	+----------------------+ IndexOffset
//	| block index          |  offset u64, stored u32, raw u32, crc32c u32
//	+----------------------+ ValuesOffset
//	| value blocks         |  row-major float64, RowsPerBlock rows per block
//	+----------------------+
//
// The header checksum covers every section between the header and the values.
// Each block carries its own CRC32C in the block index. Blocks may be stored
// LZ4 or ZSTD compressed; a block whose compressed form does not pay off is
// stored raw.
//
// Files are immutable once written. A File handle never loads the whole value
// section: uncompressed files serve one ranged read per row, compressed files
// decode whole blocks and keep them in a block cache.
package matrix
