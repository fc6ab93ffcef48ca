package matrix

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"sync/atomic"

	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/internal/cache"
	"github.com/hupe1980/rnaget/internal/hash"
	"github.com/hupe1980/rnaget/internal/index"
	"github.com/hupe1980/rnaget/model"
)

// RowData is one matrix row in source units.
type RowData struct {
	Offset  int
	Feature string
	Values  []float64
}

// File is an open, immutable matrix file. It is safe for concurrent use.
type File struct {
	header    *FileHeader
	blob      blobstore.Blob
	data      []byte // mapped bytes, nil if the blob is not mappable
	name      string
	identity  string
	features  *index.Labels
	samples   *index.Labels
	units     model.Units
	meta      Metadata
	metaCodec string
	totals    []float64
	blocks    []BlockInfo

	cache  cache.BlockCache
	verify bool
	closed atomic.Bool
}

// Option configures a File.
type Option func(*File)

// WithBlockCache sets the cache for decoded blocks of compressed files.
func WithBlockCache(c cache.BlockCache) Option {
	return func(f *File) {
		f.cache = c
	}
}

// WithVerifyChecksum enables full block checksum verification on open.
func WithVerifyChecksum(verify bool) Option {
	return func(f *File) {
		f.verify = verify
	}
}

// WithName records the blob name the file was opened from.
func WithName(name string) Option {
	return func(f *File) {
		f.name = name
	}
}

// Open opens a matrix file from a blob. On success the File owns the blob.
func Open(ctx context.Context, blob blobstore.Blob, opts ...Option) (*File, error) {
	size := blob.Size()
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrCorrupt, size)
	}

	f := &File{blob: blob}
	for _, opt := range opts {
		opt(f)
	}
	if m, ok := blob.(blobstore.Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		f.data = data
	}

	hbuf, err := f.readAt(ctx, 0, HeaderSize)
	if err != nil {
		return nil, err
	}
	header, err := DecodeHeader(hbuf)
	if err != nil {
		return nil, err
	}
	if header.ValuesOffset > uint64(size) {
		return nil, fmt.Errorf("%w: sections exceed file size", ErrCorrupt)
	}
	f.header = header

	sections, err := f.readAt(ctx, HeaderSize, int(header.ValuesOffset-HeaderSize))
	if err != nil {
		return nil, err
	}
	if hash.CRC32C(sections) != header.Checksum {
		return nil, fmt.Errorf("%w: index sections", ErrChecksumMismatch)
	}
	if err := f.parseSections(sections, size); err != nil {
		return nil, err
	}

	f.identity = fmt.Sprintf("%08x%08x-%x", header.Checksum, header.HeaderChecksum, size)

	if f.verify {
		if err := f.Verify(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// OpenStore opens the named matrix file from store.
func OpenStore(ctx context.Context, store blobstore.BlobStore, name string, opts ...Option) (*File, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	f, err := Open(ctx, blob, append([]Option{WithName(name)}, opts...)...)
	if err != nil {
		_ = blob.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) parseSections(sections []byte, size int64) error {
	h := f.header
	section := func(from, to uint64) []byte {
		return sections[from-HeaderSize : to-HeaderSize]
	}

	features, err := decodeLabels(section(h.FeatureOffset, h.SampleOffset), h.Rows)
	if err != nil {
		return err
	}
	samples, err := decodeLabels(section(h.SampleOffset, h.MetadataOffset), h.Cols)
	if err != nil {
		return err
	}
	if err := index.Validate(index.AxisFeature, features); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := index.Validate(index.AxisSample, samples); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	f.features = index.New(index.AxisFeature, features)
	f.samples = index.New(index.AxisSample, samples)

	f.meta, f.metaCodec, err = decodeMetadata(section(h.MetadataOffset, h.TotalsOffset))
	if err != nil {
		return err
	}

	f.units = model.Units(h.Units)
	if !f.units.Valid() {
		return fmt.Errorf("%w: unknown units %d", ErrCorrupt, h.Units)
	}

	totals := section(h.TotalsOffset, h.IndexOffset)
	f.totals = make([]float64, h.Cols)
	for i := range f.totals {
		f.totals[i] = math.Float64frombits(binary.LittleEndian.Uint64(totals[i*8:]))
	}

	idx := section(h.IndexOffset, h.ValuesOffset)
	rowBytes := h.Cols * 8
	f.blocks = make([]BlockInfo, h.BlockCount)
	for i := range f.blocks {
		b := decodeBlockInfo(idx[i*blockIndexEntrySize:])
		rows := min(uint64(h.RowsPerBlock), h.Rows-uint64(i)*uint64(h.RowsPerBlock))
		switch {
		case b.Offset < h.ValuesOffset || b.Offset+uint64(b.Stored) > uint64(size):
			return fmt.Errorf("%w: block %d outside file", ErrCorrupt, i)
		case uint64(b.Raw) != rows*rowBytes:
			return fmt.Errorf("%w: block %d raw size %d, want %d", ErrCorrupt, i, b.Raw, rows*rowBytes)
		case b.Compressed() && h.Compression == CompressionNone:
			return fmt.Errorf("%w: block %d compressed in uncompressed file", ErrCorrupt, i)
		}
		f.blocks[i] = b
	}
	return nil
}

// readAt returns n bytes at off. Mapped files return a shared, read-only slice.
func (f *File) readAt(ctx context.Context, off int64, n int) ([]byte, error) {
	if f.data != nil {
		if off+int64(n) > int64(len(f.data)) {
			return nil, fmt.Errorf("%w: read past end of file", ErrCorrupt)
		}
		return f.data[off : off+int64(n)], nil
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := f.blob.ReadAt(ctx, buf, off); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read past end of file", ErrCorrupt)
		}
		return nil, err
	}
	return buf, nil
}

// Name returns the blob name, if known.
func (f *File) Name() string { return f.name }

// Identity returns a stable content identity. Two files with equal identity
// hold the same matrix.
func (f *File) Identity() string { return f.identity }

// Header returns the decoded file header.
func (f *File) Header() FileHeader { return *f.header }

// Rows returns the number of features.
func (f *File) Rows() int { return f.features.Len() }

// Cols returns the number of samples.
func (f *File) Cols() int { return f.samples.Len() }

// FeatureIDs returns the feature labels in file order. Do not modify.
func (f *File) FeatureIDs() []string { return f.features.Slice() }

// SampleIDs returns the sample labels in file order. Do not modify.
func (f *File) SampleIDs() []string { return f.samples.Slice() }

// Features returns the feature index.
func (f *File) Features() *index.Labels { return f.features }

// Samples returns the sample index.
func (f *File) Samples() *index.Labels { return f.samples }

// Units returns the units of the stored values.
func (f *File) Units() model.Units { return f.units }

// Metadata returns the metadata document.
func (f *File) Metadata() Metadata { return f.meta }

// MetadataCodec returns the name of the codec the metadata was written with.
func (f *File) MetadataCodec() string { return f.metaCodec }

// ColumnTotals returns the per-sample sum over all features. Do not modify.
func (f *File) ColumnTotals() []float64 { return f.totals }

// Compression returns the block compression of the file.
func (f *File) Compression() CompressionType { return f.header.Compression }

// Size returns the file size in bytes.
func (f *File) Size() int64 { return f.blob.Size() }

// ResolveFeatures maps feature IDs to row offsets (see index.Labels.Resolve).
func (f *File) ResolveFeatures(ids []string) ([]int, error) {
	return f.features.Resolve(ids)
}

// ResolveSamples maps sample IDs to column offsets (see index.Labels.Resolve).
func (f *File) ResolveSamples(ids []string) ([]int, error) {
	return f.samples.Resolve(ids)
}

// ReadRows yields the rows at offsets in the given order.
//
// Every offset is validated before the first read; an offset outside
// [0, rows) yields a single ErrOutOfRange. Only the blocks holding the
// requested rows are read.
func (f *File) ReadRows(ctx context.Context, offsets []int) iter.Seq2[RowData, error] {
	return func(yield func(RowData, error) bool) {
		if f.closed.Load() {
			yield(RowData{}, ErrClosed)
			return
		}
		rows := f.Rows()
		for _, off := range offsets {
			if off < 0 || off >= rows {
				yield(RowData{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, off, rows))
				return
			}
		}
		for _, off := range offsets {
			if err := ctx.Err(); err != nil {
				yield(RowData{}, err)
				return
			}
			if f.closed.Load() {
				yield(RowData{}, ErrClosed)
				return
			}
			values, err := f.readRow(ctx, off)
			if err != nil {
				yield(RowData{}, err)
				return
			}
			if !yield(RowData{Offset: off, Feature: f.features.At(off), Values: values}, nil) {
				return
			}
		}
	}
}

func (f *File) readRow(ctx context.Context, off int) ([]float64, error) {
	cols := f.Cols()
	if cols == 0 {
		return []float64{}, nil
	}
	rpb := int(f.header.RowsPerBlock)
	blk, inBlock := off/rpb, off%rpb
	rowBytes := cols * 8

	var raw []byte
	if b := f.blocks[blk]; !b.Compressed() {
		var err error
		raw, err = f.readAt(ctx, int64(b.Offset)+int64(inBlock*rowBytes), rowBytes)
		if err != nil {
			return nil, err
		}
	} else {
		block, err := f.block(ctx, blk)
		if err != nil {
			return nil, err
		}
		raw = block[inBlock*rowBytes : (inBlock+1)*rowBytes]
	}

	values := make([]float64, cols)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return values, nil
}

// block returns the decoded bytes of a compressed block.
func (f *File) block(ctx context.Context, blk int) ([]byte, error) {
	key := cache.CacheKey{Kind: cache.CacheKindMatrixBlock, Path: f.identity, Offset: uint64(blk)}
	if f.cache != nil {
		if data, ok := f.cache.Get(ctx, key); ok {
			return data, nil
		}
	}

	stored, err := f.storedBlock(ctx, blk)
	if err != nil {
		return nil, err
	}
	b := f.blocks[blk]
	data, err := decompressBlock(stored, int(b.Raw), f.header.Compression)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", blk, err)
	}
	if f.cache != nil {
		f.cache.Set(ctx, key, data)
	}
	return data, nil
}

func (f *File) storedBlock(ctx context.Context, blk int) ([]byte, error) {
	b := f.blocks[blk]
	stored, err := f.readAt(ctx, int64(b.Offset), int(b.Stored))
	if err != nil {
		return nil, err
	}
	if hash.CRC32C(stored) != b.CRC {
		return nil, fmt.Errorf("%w: block %d", ErrChecksumMismatch, blk)
	}
	return stored, nil
}

// Verify checks the checksum of every value block.
func (f *File) Verify(ctx context.Context) error {
	if f.closed.Load() {
		return ErrClosed
	}
	for i := range f.blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := f.storedBlock(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the blob and drops cached blocks. It is idempotent.
func (f *File) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	if f.cache != nil {
		f.cache.Invalidate(func(k cache.CacheKey) bool {
			return k.Kind == cache.CacheKindMatrixBlock && k.Path == f.identity
		})
	}
	return f.blob.Close()
}
