package matrix

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/rnaget/internal/hash"
)

const (
	MagicNumber = 0x4D414E52 // "RNAM"
	Version     = 1

	// HeaderSize is the fixed size of the file header.
	HeaderSize = 128

	// DefaultRowsPerBlock is the number of rows grouped into one value block.
	DefaultRowsPerBlock = 256

	blockIndexEntrySize = 8 + 4 + 4 + 4
	headerChecksumOff   = 92
)

var (
	// ErrCorrupt is matched by every format violation.
	ErrCorrupt = errors.New("matrix: corrupt file")

	ErrInvalidMagic     = fmt.Errorf("%w: invalid magic number", ErrCorrupt)
	ErrInvalidVersion   = fmt.Errorf("%w: unsupported version", ErrCorrupt)
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrCorrupt)

	// ErrOutOfRange is returned when a row offset is outside [0, rows).
	ErrOutOfRange = errors.New("matrix: row offset out of range")
	// ErrShape is returned when a row does not match the column count.
	ErrShape = errors.New("matrix: shape mismatch")
	// ErrInvalidValue is returned for NaN or infinite values.
	ErrInvalidValue = errors.New("matrix: non-finite value")
	// ErrClosed is returned when using a closed writer or file.
	ErrClosed = errors.New("matrix: closed")
)

// FileHeader describes the layout of a matrix file.
// It is stored at the beginning of the file.
type FileHeader struct {
	Magic          uint32
	Version        uint32
	Rows           uint64
	Cols           uint64
	Units          uint8
	Compression    CompressionType
	_              [2]byte
	RowsPerBlock   uint32
	FeatureOffset  uint64
	SampleOffset   uint64
	MetadataOffset uint64
	TotalsOffset   uint64
	IndexOffset    uint64
	ValuesOffset   uint64
	BlockCount     uint64
	Checksum       uint32 // CRC32C of [HeaderSize, ValuesOffset)
	HeaderChecksum uint32 // CRC32C of the header bytes before this field
	_              [32]byte
}

// Encode serializes the header and stamps HeaderChecksum.
func (h *FileHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint64(buf[8:], h.Rows)
	binary.LittleEndian.PutUint64(buf[16:], h.Cols)
	buf[24] = h.Units
	buf[25] = byte(h.Compression)
	// Padding [26:28]
	binary.LittleEndian.PutUint32(buf[28:], h.RowsPerBlock)
	binary.LittleEndian.PutUint64(buf[32:], h.FeatureOffset)
	binary.LittleEndian.PutUint64(buf[40:], h.SampleOffset)
	binary.LittleEndian.PutUint64(buf[48:], h.MetadataOffset)
	binary.LittleEndian.PutUint64(buf[56:], h.TotalsOffset)
	binary.LittleEndian.PutUint64(buf[64:], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[72:], h.ValuesOffset)
	binary.LittleEndian.PutUint64(buf[80:], h.BlockCount)
	binary.LittleEndian.PutUint32(buf[88:], h.Checksum)
	h.HeaderChecksum = hash.CRC32C(buf[:headerChecksumOff])
	binary.LittleEndian.PutUint32(buf[headerChecksumOff:], h.HeaderChecksum)
	return buf
}

// DecodeHeader parses and validates a header.
func DecodeHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: buffer too small for header", ErrCorrupt)
	}
	h := &FileHeader{}
	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	if h.Magic != MagicNumber {
		return nil, ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	if h.Version != Version {
		return nil, ErrInvalidVersion
	}
	h.HeaderChecksum = binary.LittleEndian.Uint32(buf[headerChecksumOff:])
	if hash.CRC32C(buf[:headerChecksumOff]) != h.HeaderChecksum {
		return nil, fmt.Errorf("%w: header", ErrChecksumMismatch)
	}
	h.Rows = binary.LittleEndian.Uint64(buf[8:])
	h.Cols = binary.LittleEndian.Uint64(buf[16:])
	h.Units = buf[24]
	h.Compression = CompressionType(buf[25])
	h.RowsPerBlock = binary.LittleEndian.Uint32(buf[28:])
	h.FeatureOffset = binary.LittleEndian.Uint64(buf[32:])
	h.SampleOffset = binary.LittleEndian.Uint64(buf[40:])
	h.MetadataOffset = binary.LittleEndian.Uint64(buf[48:])
	h.TotalsOffset = binary.LittleEndian.Uint64(buf[56:])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[64:])
	h.ValuesOffset = binary.LittleEndian.Uint64(buf[72:])
	h.BlockCount = binary.LittleEndian.Uint64(buf[80:])
	h.Checksum = binary.LittleEndian.Uint32(buf[88:])
	return h, h.validate()
}

func (h *FileHeader) validate() error {
	if !h.Compression.Valid() {
		return fmt.Errorf("%w: unknown compression %d", ErrCorrupt, h.Compression)
	}
	if h.RowsPerBlock == 0 {
		return fmt.Errorf("%w: zero rows per block", ErrCorrupt)
	}
	if !(HeaderSize <= h.FeatureOffset && h.FeatureOffset <= h.SampleOffset &&
		h.SampleOffset <= h.MetadataOffset && h.MetadataOffset <= h.TotalsOffset &&
		h.TotalsOffset <= h.IndexOffset && h.IndexOffset <= h.ValuesOffset) {
		return fmt.Errorf("%w: section offsets out of order", ErrCorrupt)
	}
	if h.IndexOffset-h.TotalsOffset != h.Cols*8 {
		return fmt.Errorf("%w: column totals size", ErrCorrupt)
	}
	if h.ValuesOffset-h.IndexOffset != h.BlockCount*blockIndexEntrySize {
		return fmt.Errorf("%w: block index size", ErrCorrupt)
	}
	if want := (h.Rows + uint64(h.RowsPerBlock) - 1) / uint64(h.RowsPerBlock); want != h.BlockCount {
		return fmt.Errorf("%w: block count %d, want %d", ErrCorrupt, h.BlockCount, want)
	}
	return nil
}

// BlockInfo locates one value block.
type BlockInfo struct {
	Offset uint64 // absolute file offset
	Stored uint32 // bytes on disk
	Raw    uint32 // bytes after decompression
	CRC    uint32 // CRC32C of the stored bytes
}

// Compressed reports whether the block is stored compressed.
func (b BlockInfo) Compressed() bool { return b.Stored != b.Raw }

func (b BlockInfo) encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:], b.Offset)
	binary.LittleEndian.PutUint32(dst[8:], b.Stored)
	binary.LittleEndian.PutUint32(dst[12:], b.Raw)
	binary.LittleEndian.PutUint32(dst[16:], b.CRC)
}

func decodeBlockInfo(src []byte) BlockInfo {
	return BlockInfo{
		Offset: binary.LittleEndian.Uint64(src[0:]),
		Stored: binary.LittleEndian.Uint32(src[8:]),
		Raw:    binary.LittleEndian.Uint32(src[12:]),
		CRC:    binary.LittleEndian.Uint32(src[16:]),
	}
}

func appendLabels(dst []byte, labels []string) []byte {
	for _, l := range labels {
		dst = binary.AppendUvarint(dst, uint64(len(l)))
		dst = append(dst, l...)
	}
	return dst
}

func decodeLabels(src []byte, n uint64) ([]string, error) {
	if n > uint64(len(src)) {
		return nil, fmt.Errorf("%w: label count %d exceeds section", ErrCorrupt, n)
	}
	labels := make([]string, 0, n)
	for range n {
		l, k := binary.Uvarint(src)
		if k <= 0 || l > uint64(len(src)-k) {
			return nil, fmt.Errorf("%w: truncated label section", ErrCorrupt)
		}
		labels = append(labels, string(src[k:k+int(l)]))
		src = src[k+int(l):]
	}
	if len(src) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes in label section", ErrCorrupt)
	}
	return labels, nil
}
