package matrix

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/codec"
	"github.com/hupe1980/rnaget/internal/hash"
	"github.com/hupe1980/rnaget/internal/index"
	"github.com/hupe1980/rnaget/model"
)

// Writer builds a matrix file.
//
// Rows are added in file order. Encoded value blocks are kept in memory until
// Flush writes the sealed file, since every section preceding the values
// depends on the complete row set.
type Writer struct {
	w            io.Writer
	samples      []string
	features     []string
	seen         map[string]struct{}
	units        model.Units
	meta         Metadata
	codec        codec.Codec
	compression  CompressionType
	rowsPerBlock int
	now          func() time.Time

	totals  []float64
	cur     []byte
	curRows int
	blocks  []BlockInfo // Offset is relative to the values section until Flush
	values  bytes.Buffer
	closed  bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithUnits sets the units of the stored values.
func WithUnits(u model.Units) WriterOption {
	return func(w *Writer) { w.units = u }
}

// WithMetadata sets the metadata document. A zero Created is stamped on Flush.
func WithMetadata(md Metadata) WriterOption {
	return func(w *Writer) { w.meta = md }
}

// WithCodec sets the metadata codec (default codec.Default).
func WithCodec(c codec.Codec) WriterOption {
	return func(w *Writer) { w.codec = c }
}

// WithCompression sets the block compression.
func WithCompression(ct CompressionType) WriterOption {
	return func(w *Writer) { w.compression = ct }
}

// WithRowsPerBlock sets the number of rows per value block.
func WithRowsPerBlock(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.rowsPerBlock = n
		}
	}
}

// NewWriter creates a writer for a matrix with the given sample columns.
func NewWriter(w io.Writer, sampleIDs []string, opts ...WriterOption) (*Writer, error) {
	if err := index.Validate(index.AxisSample, sampleIDs); err != nil {
		return nil, err
	}
	mw := &Writer{
		w:            w,
		samples:      sampleIDs,
		seen:         make(map[string]struct{}),
		codec:        codec.Default,
		rowsPerBlock: DefaultRowsPerBlock,
		now:          time.Now,
		totals:       make([]float64, len(sampleIDs)),
	}
	for _, opt := range opts {
		opt(mw)
	}
	if !mw.units.Valid() {
		return nil, fmt.Errorf("matrix: invalid units %d", mw.units)
	}
	if !mw.compression.Valid() {
		return nil, fmt.Errorf("matrix: unknown compression %d", mw.compression)
	}
	rowBytes := len(sampleIDs) * 8
	if rowBytes > 0 && mw.rowsPerBlock > math.MaxUint32/rowBytes {
		mw.rowsPerBlock = max(1, math.MaxUint32/rowBytes)
	}
	return mw, nil
}

// Rows returns the number of rows added so far.
func (w *Writer) Rows() int { return len(w.features) }

// Add appends one feature row. values must have one entry per sample.
func (w *Writer) Add(feature string, values []float64) error {
	if w.closed {
		return ErrClosed
	}
	if feature == "" {
		return fmt.Errorf("matrix: empty feature label")
	}
	if len(values) != len(w.samples) {
		return fmt.Errorf("%w: row %q has %d values, want %d", ErrShape, feature, len(values), len(w.samples))
	}
	if _, ok := w.seen[feature]; ok {
		return fmt.Errorf("%w: feature %q", index.ErrDuplicateLabel, feature)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: feature %q", ErrInvalidValue, feature)
		}
	}

	w.seen[feature] = struct{}{}
	w.features = append(w.features, feature)
	for i, v := range values {
		w.totals[i] += v
		w.cur = binary.LittleEndian.AppendUint64(w.cur, math.Float64bits(v))
	}
	w.curRows++
	if w.curRows == w.rowsPerBlock {
		return w.flushBlock()
	}
	return nil
}

func (w *Writer) flushBlock() error {
	if w.curRows == 0 {
		return nil
	}
	stored, err := compressBlock(w.cur, w.compression)
	if err != nil {
		return err
	}
	w.blocks = append(w.blocks, BlockInfo{
		Offset: uint64(w.values.Len()),
		Stored: uint32(len(stored)),
		Raw:    uint32(len(w.cur)),
		CRC:    hash.CRC32C(stored),
	})
	w.values.Write(stored)
	w.cur = w.cur[:0]
	w.curRows = 0
	return nil
}

// Flush seals the file and writes it to the underlying writer.
// The writer cannot be used afterwards.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	if err := w.flushBlock(); err != nil {
		return err
	}
	if w.meta.Created.IsZero() {
		w.meta.Created = w.now().UTC()
	}

	h := &FileHeader{
		Magic:        MagicNumber,
		Version:      Version,
		Rows:         uint64(len(w.features)),
		Cols:         uint64(len(w.samples)),
		Units:        uint8(w.units),
		Compression:  w.compression,
		RowsPerBlock: uint32(w.rowsPerBlock),
		BlockCount:   uint64(len(w.blocks)),
	}

	sections := make([]byte, 0, 1024)
	h.FeatureOffset = HeaderSize
	sections = appendLabels(sections, w.features)
	h.SampleOffset = HeaderSize + uint64(len(sections))
	sections = appendLabels(sections, w.samples)
	h.MetadataOffset = HeaderSize + uint64(len(sections))
	md, err := encodeMetadata(w.codec, w.meta)
	if err != nil {
		return err
	}
	sections = append(sections, md...)
	h.TotalsOffset = HeaderSize + uint64(len(sections))
	for _, t := range w.totals {
		sections = binary.LittleEndian.AppendUint64(sections, math.Float64bits(t))
	}
	h.IndexOffset = HeaderSize + uint64(len(sections))
	h.ValuesOffset = h.IndexOffset + uint64(len(w.blocks))*blockIndexEntrySize

	var entry [blockIndexEntrySize]byte
	for _, b := range w.blocks {
		b.Offset += h.ValuesOffset
		b.encode(entry[:])
		sections = append(sections, entry[:]...)
	}
	h.Checksum = hash.CRC32C(sections)

	if _, err := w.w.Write(h.Encode()); err != nil {
		return err
	}
	if _, err := w.w.Write(sections); err != nil {
		return err
	}
	_, err = w.values.WriteTo(w.w)
	return err
}

// Create writes a matrix file named name into store. fill adds the rows.
// Nothing becomes visible if fill or the write fails.
func Create(ctx context.Context, store blobstore.BlobStore, name string, sampleIDs []string, fill func(*Writer) error, opts ...WriterOption) (err error) {
	wb, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = wb.Abort()
		}
	}()

	bw := bufio.NewWriterSize(wb, 256<<10)
	w, err := NewWriter(bw, sampleIDs, opts...)
	if err != nil {
		return err
	}
	if err = fill(w); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	return wb.Close()
}
