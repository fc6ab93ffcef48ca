package encoding

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/rnaget/model"
)

const (
	featureHeader = "feature"
	sparseHeader  = "#samples"
)

// appendField appends s, quoted when it contains the separator, a quote or a
// line break.
func appendField(dst []byte, s string, sep byte) []byte {
	if !strings.ContainsAny(s, string(sep)+"\"\r\n") {
		return append(dst, s...)
	}
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			dst = append(dst, '"')
		}
		dst = append(dst, s[i])
	}
	return append(dst, '"')
}

func appendHeader(dst []byte, first string, samples []string, sep byte) []byte {
	dst = append(dst, first...)
	for _, s := range samples {
		dst = append(dst, sep)
		dst = appendField(dst, s, sep)
	}
	return append(dst, '\n')
}

type delimitedEncoder struct {
	w    *bufio.Writer
	sep  byte
	prec int
	buf  []byte
}

func (e *delimitedEncoder) header(samples []string, _ model.Units) error {
	_, err := e.w.Write(appendHeader(e.buf[:0], featureHeader, samples, e.sep))
	return err
}

func (e *delimitedEncoder) row(r model.Row) error {
	b := appendField(e.buf[:0], r.Feature, e.sep)
	for _, v := range r.Values {
		b = append(b, e.sep)
		b = appendFloat(b, v, e.prec)
	}
	b = append(b, '\n')
	e.buf = b
	_, err := e.w.Write(b)
	return err
}

func (e *delimitedEncoder) close() error { return nil }

// sparseEncoder writes offset:value pairs for the non-zero cells of each row.
type sparseEncoder struct {
	w       *bufio.Writer
	prec    int
	buf     []byte
	nonZero *roaring.Bitmap
}

func (e *sparseEncoder) header(samples []string, _ model.Units) error {
	e.nonZero = roaring.New()
	_, err := e.w.Write(appendHeader(e.buf[:0], sparseHeader, samples, '\t'))
	return err
}

func (e *sparseEncoder) row(r model.Row) error {
	e.nonZero.Clear()
	for i, v := range r.Values {
		if v != 0 {
			e.nonZero.Add(uint32(i))
		}
	}

	b := appendField(e.buf[:0], r.Feature, '\t')
	it := e.nonZero.Iterator()
	for it.HasNext() {
		i := it.Next()
		b = append(b, '\t')
		b = strconv.AppendUint(b, uint64(i), 10)
		b = append(b, ':')
		b = appendFloat(b, r.Values[i], e.prec)
	}
	b = append(b, '\n')
	e.buf = b
	_, err := e.w.Write(b)
	return err
}

func (e *sparseEncoder) close() error { return nil }
