package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"

	"github.com/hupe1980/rnaget/model"
)

// ErrUnsupportedFormat is returned for format tags without an encoder.
var ErrUnsupportedFormat = errors.New("encoding: unsupported format")

// ShortestPrecision formats every value with the fewest digits that parse
// back to the same float64.
const ShortestPrecision = -1

// DefaultPrecision is the precision of the text encoders. Decoding a payload
// written with it yields the stored values exactly.
const DefaultPrecision = ShortestPrecision

// Source is a stream of rows aligned to a fixed sample header.
// *query.Result implements it.
type Source interface {
	SampleIDs() []string
	Units() model.Units
	Rows(ctx context.Context) iter.Seq2[model.Row, error]
}

// Stats describes one encoding run.
type Stats struct {
	Rows  int
	Bytes int64
}

// Options configures Encode.
type Options struct {
	// Precision is the number of decimals for text formats.
	// ShortestPrecision selects the shortest exact representation.
	Precision int
	// BufferSize is the size of the output buffer.
	BufferSize int
}

// Option mutates Options.
type Option func(*Options)

// WithPrecision sets the number of decimals written by text formats.
func WithPrecision(p int) Option {
	return func(o *Options) {
		o.Precision = p
	}
}

// WithBufferSize sets the size of the output buffer.
func WithBufferSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.BufferSize = n
		}
	}
}

// ContentType returns the MIME type served for f.
func ContentType(f model.Format) string {
	switch f {
	case model.FormatTSV:
		return "text/tab-separated-values"
	case model.FormatCSV:
		return "text/csv"
	case model.FormatSparse:
		return "text/plain"
	case model.FormatBinary:
		return "application/octet-stream"
	case model.FormatJSON:
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension used for artifacts of format f.
func Extension(f model.Format) string {
	switch f {
	case model.FormatSparse:
		return "txt"
	case model.FormatBinary:
		return "bin"
	case model.FormatJSON:
		return "jsonl"
	default:
		return string(f)
	}
}

type rowEncoder interface {
	header(samples []string, units model.Units) error
	row(r model.Row) error
	close() error
}

func newRowEncoder(w *bufio.Writer, f model.Format, prec int) (rowEncoder, error) {
	switch f {
	case model.FormatTSV:
		return &delimitedEncoder{w: w, sep: '\t', prec: prec}, nil
	case model.FormatCSV:
		return &delimitedEncoder{w: w, sep: ',', prec: prec}, nil
	case model.FormatSparse:
		return &sparseEncoder{w: w, prec: prec}, nil
	case model.FormatBinary:
		return &binaryEncoder{w: w}, nil
	case model.FormatJSON:
		return newJSONEncoder(w, prec), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Encode streams src to w in format f.
func Encode(ctx context.Context, w io.Writer, src Source, f model.Format, opts ...Option) (Stats, error) {
	o := Options{
		Precision:  DefaultPrecision,
		BufferSize: 64 << 10,
	}
	for _, fn := range opts {
		fn(&o)
	}

	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, o.BufferSize)

	enc, err := newRowEncoder(bw, f, o.Precision)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	if err := enc.header(src.SampleIDs(), src.Units()); err != nil {
		return stats, fmt.Errorf("encode header: %w", err)
	}
	for row, err := range src.Rows(ctx) {
		if err != nil {
			return stats, err
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := enc.row(row); err != nil {
			return stats, fmt.Errorf("encode row %q: %w", row.Feature, err)
		}
		stats.Rows++
	}
	if err := enc.close(); err != nil {
		return stats, fmt.Errorf("encode trailer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("flush: %w", err)
	}
	stats.Bytes = cw.n
	return stats, nil
}

func errRowShape(r model.Row, cols int) error {
	return fmt.Errorf("row %q has %d values, header has %d", r.Feature, len(r.Values), cols)
}

func appendFloat(dst []byte, v float64, prec int) []byte {
	if prec < 0 {
		return strconv.AppendFloat(dst, v, 'g', -1, 64)
	}
	return strconv.AppendFloat(dst, v, 'f', prec, 64)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
