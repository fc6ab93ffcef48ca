package encoding

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hupe1980/rnaget/model"
)

// ErrMalformed is returned by Decode for input that does not match its format.
var ErrMalformed = errors.New("encoding: malformed input")

// Table is a fully decoded artifact.
type Table struct {
	// Units is known for binary and json; text formats decode as unspecified.
	Units   model.Units
	Samples []string
	Rows    []model.Row
}

// Triple is a single cell of a Table.
type Triple struct {
	Feature string
	Sample  string
	Value   float64
}

// Triples yields every cell in row-major order.
func (t *Table) Triples() iter.Seq[Triple] {
	return func(yield func(Triple) bool) {
		for _, r := range t.Rows {
			for i, v := range r.Values {
				if !yield(Triple{Feature: r.Feature, Sample: t.Samples[i], Value: v}) {
					return
				}
			}
		}
	}
}

// Decode parses an artifact written by Encode.
func Decode(r io.Reader, f model.Format) (*Table, error) {
	switch f {
	case model.FormatTSV:
		return decodeDelimited(r, '\t')
	case model.FormatCSV:
		return decodeDelimited(r, ',')
	case model.FormatSparse:
		return decodeSparse(r)
	case model.FormatBinary:
		return decodeBinary(r)
	case model.FormatJSON:
		return decodeJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func decodeDelimited(r io.Reader, sep rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = 0

	head, err := cr.Read()
	if err != nil {
		return nil, malformed("header: %v", err)
	}
	if head[0] != featureHeader {
		return nil, malformed("header starts with %q", head[0])
	}
	t := &Table{Samples: append([]string{}, head[1:]...)}

	cr.ReuseRecord = true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, malformed("%v", err)
		}
		values := make([]float64, len(rec)-1)
		for i, s := range rec[1:] {
			if values[i], err = strconv.ParseFloat(s, 64); err != nil {
				return nil, malformed("row %q: %v", rec[0], err)
			}
		}
		t.Rows = append(t.Rows, model.Row{Feature: rec[0], Values: values})
	}
}

func decodeSparse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, malformed("header: %v", err)
	}
	if head[0] != sparseHeader {
		return nil, malformed("header starts with %q", head[0])
	}
	t := &Table{Samples: append([]string{}, head[1:]...)}
	cols := len(t.Samples)

	cr.ReuseRecord = true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, malformed("%v", err)
		}
		values := make([]float64, cols)
		for _, cell := range rec[1:] {
			idx, val, ok := strings.Cut(cell, ":")
			if !ok {
				return nil, malformed("row %q: cell %q", rec[0], cell)
			}
			i, err := strconv.Atoi(idx)
			if err != nil || i < 0 || i >= cols {
				return nil, malformed("row %q: column %q", rec[0], idx)
			}
			if values[i], err = strconv.ParseFloat(val, 64); err != nil {
				return nil, malformed("row %q: %v", rec[0], err)
			}
		}
		t.Rows = append(t.Rows, model.Row{Feature: rec[0], Values: values})
	}
}

func decodeBinary(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)

	head := make([]byte, len(binaryMagic)+2)
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, malformed("header: %v", err)
	}
	if string(head[:len(binaryMagic)]) != binaryMagic {
		return nil, malformed("bad magic %q", head[:len(binaryMagic)])
	}
	if v := head[len(binaryMagic)]; v != binaryVersion {
		return nil, malformed("unsupported version %d", v)
	}
	t := &Table{Units: model.Units(head[len(binaryMagic)+1])}

	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, malformed("sample count: %v", err)
	}
	t.Samples = make([]string, 0, min(n, 1<<16))
	for range n {
		s, err := readLabel(br)
		if err != nil {
			return nil, err
		}
		t.Samples = append(t.Samples, s)
	}

	word := make([]byte, 8)
	for {
		marker, err := br.ReadByte()
		if err != nil {
			return nil, malformed("missing terminator: %v", err)
		}
		switch marker {
		case binaryTerminator:
			return t, nil
		case binaryRowMarker:
		default:
			return nil, malformed("bad row marker 0x%02x", marker)
		}
		feature, err := readLabel(br)
		if err != nil {
			return nil, err
		}
		values := make([]float64, len(t.Samples))
		for i := range values {
			if _, err := io.ReadFull(br, word); err != nil {
				return nil, malformed("row %q: %v", feature, err)
			}
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(word))
		}
		t.Rows = append(t.Rows, model.Row{Feature: feature, Values: values})
	}
}

func readLabel(br *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return "", malformed("label length: %v", err)
	}
	if n > math.MaxUint16 {
		return "", malformed("label length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return "", malformed("label: %v", err)
	}
	return string(b), nil
}

type jsonRowIn struct {
	Feature string    `json:"feature"`
	Values  []float64 `json:"values"`
}

func decodeJSON(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)

	var head jsonHeader
	if err := dec.Decode(&head); err != nil {
		return nil, malformed("header: %v", err)
	}
	t := &Table{Units: head.Units, Samples: head.Samples}
	for {
		var row jsonRowIn
		err := dec.Decode(&row)
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, malformed("%v", err)
		}
		if len(row.Values) != len(t.Samples) {
			return nil, malformed("%v", errRowShape(model.Row(row), len(t.Samples)))
		}
		t.Rows = append(t.Rows, model.Row(row))
	}
}
