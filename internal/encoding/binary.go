package encoding

import (
	"bufio"
	"encoding/binary"
	"math"

	"github.com/hupe1980/rnaget/model"
)

const (
	binaryMagic   = "RNAB"
	binaryVersion = 1

	binaryRowMarker  = 0x01
	binaryTerminator = 0x00
)

// binaryEncoder writes packed little-endian float64 rows.
type binaryEncoder struct {
	w    *bufio.Writer
	cols int
	buf  []byte
}

func (e *binaryEncoder) header(samples []string, units model.Units) error {
	b := append(e.buf[:0], binaryMagic...)
	b = append(b, binaryVersion, byte(units))
	b = binary.AppendUvarint(b, uint64(len(samples)))
	for _, s := range samples {
		b = appendLabel(b, s)
	}
	e.cols = len(samples)
	e.buf = b
	_, err := e.w.Write(b)
	return err
}

func (e *binaryEncoder) row(r model.Row) error {
	if len(r.Values) != e.cols {
		return errRowShape(r, e.cols)
	}
	b := append(e.buf[:0], binaryRowMarker)
	b = appendLabel(b, r.Feature)
	for _, v := range r.Values {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
	}
	e.buf = b
	_, err := e.w.Write(b)
	return err
}

func (e *binaryEncoder) close() error {
	return e.w.WriteByte(binaryTerminator)
}

func appendLabel(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}
