package encoding

import (
	"bufio"

	"github.com/goccy/go-json"

	"github.com/hupe1980/rnaget/model"
)

type jsonHeader struct {
	Units   model.Units `json:"units"`
	Samples []string    `json:"samples"`
}

type jsonRow struct {
	Feature string        `json:"feature"`
	Values  []json.Number `json:"values"`
}

// jsonEncoder writes JSON lines. Values go through json.Number so the
// configured precision survives encoding.
type jsonEncoder struct {
	enc  *json.Encoder
	prec int
	line jsonRow
	buf  []byte
}

func newJSONEncoder(w *bufio.Writer, prec int) *jsonEncoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &jsonEncoder{enc: enc, prec: prec, line: jsonRow{Values: []json.Number{}}}
}

func (e *jsonEncoder) header(samples []string, units model.Units) error {
	if samples == nil {
		samples = []string{}
	}
	return e.enc.Encode(jsonHeader{Units: units, Samples: samples})
}

func (e *jsonEncoder) row(r model.Row) error {
	e.line.Feature = r.Feature
	e.line.Values = e.line.Values[:0]
	e.buf = e.buf[:0]
	for _, v := range r.Values {
		start := len(e.buf)
		e.buf = appendFloat(e.buf, v, e.prec)
		e.line.Values = append(e.line.Values, json.Number(e.buf[start:]))
	}
	return e.enc.Encode(&e.line)
}

func (e *jsonEncoder) close() error { return nil }
