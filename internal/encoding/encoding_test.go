package encoding

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rnaget/model"
)

type sliceSource struct {
	samples []string
	units   model.Units
	rows    []model.Row
	err     error
}

func (s *sliceSource) SampleIDs() []string { return s.samples }
func (s *sliceSource) Units() model.Units  { return s.units }

func (s *sliceSource) Rows(context.Context) iter.Seq2[model.Row, error] {
	return func(yield func(model.Row, error) bool) {
		for _, r := range s.rows {
			if !yield(r, nil) {
				return
			}
		}
		if s.err != nil {
			yield(model.Row{}, s.err)
		}
	}
}

func exampleSource() *sliceSource {
	return &sliceSource{
		samples: []string{"s1", "s2", "s3"},
		units:   model.UnitsTPM,
		rows: []model.Row{
			{Feature: "g3", Values: []float64{5, 0, 6.25}},
			{Feature: "g1", Values: []float64{0, 0, 0}},
			{Feature: "g2", Values: []float64{1.0 / 3, 1e-9, 123456.789}},
		},
	}
}

func encode(t *testing.T, src Source, f model.Format, opts ...Option) ([]byte, Stats) {
	t.Helper()
	var buf bytes.Buffer
	stats, err := Encode(t.Context(), &buf, src, f, opts...)
	require.NoError(t, err)
	return buf.Bytes(), stats
}

func TestRoundTrip(t *testing.T) {
	for _, f := range model.Formats() {
		t.Run(string(f), func(t *testing.T) {
			src := exampleSource()
			data, stats := encode(t, src, f, WithPrecision(ShortestPrecision))
			assert.Equal(t, 3, stats.Rows)
			assert.Equal(t, int64(len(data)), stats.Bytes)

			table, err := Decode(bytes.NewReader(data), f)
			require.NoError(t, err)
			assert.Equal(t, src.samples, table.Samples)
			assert.Equal(t, src.rows, table.Rows)
		})
	}
}

func TestRoundTrip_UnitsInSelfDescribingFormats(t *testing.T) {
	for _, f := range []model.Format{model.FormatBinary, model.FormatJSON} {
		data, _ := encode(t, exampleSource(), f)
		table, err := Decode(bytes.NewReader(data), f)
		require.NoError(t, err)
		assert.Equal(t, model.UnitsTPM, table.Units, f)
	}
}

func TestRoundTrip_LabelsNeedingQuotes(t *testing.T) {
	src := &sliceSource{
		samples: []string{"a,b", "c\td", `e"f`},
		rows:    []model.Row{{Feature: "g,1\t\"x\"", Values: []float64{1, 2, 3}}},
	}
	for _, f := range model.Formats() {
		t.Run(string(f), func(t *testing.T) {
			data, _ := encode(t, src, f)
			table, err := Decode(bytes.NewReader(data), f)
			require.NoError(t, err)
			assert.Equal(t, src.samples, table.Samples)
			assert.Equal(t, src.rows, table.Rows)
		})
	}
}

func TestEncode_TextLayout(t *testing.T) {
	src := &sliceSource{
		samples: []string{"s1", "s2"},
		rows:    []model.Row{{Feature: "g1", Values: []float64{1, 0}}},
	}

	tsv, _ := encode(t, src, model.FormatTSV)
	assert.Equal(t, "feature\ts1\ts2\ng1\t1\t0\n", string(tsv))

	fixed, _ := encode(t, src, model.FormatTSV, WithPrecision(6))
	assert.Equal(t, "feature\ts1\ts2\ng1\t1.000000\t0.000000\n", string(fixed))

	csv, _ := encode(t, src, model.FormatCSV, WithPrecision(2))
	assert.Equal(t, "feature,s1,s2\ng1,1.00,0.00\n", string(csv))

	sparse, _ := encode(t, src, model.FormatSparse, WithPrecision(ShortestPrecision))
	assert.Equal(t, "#samples\ts1\ts2\ng1\t0:1\n", string(sparse))

	jsonl, _ := encode(t, src, model.FormatJSON, WithPrecision(1))
	assert.Equal(t, `{"units":"unspecified","samples":["s1","s2"]}`+"\n"+`{"feature":"g1","values":[1.0,0.0]}`+"\n", string(jsonl))
}

func TestEncode_Binary(t *testing.T) {
	src := &sliceSource{samples: []string{"s"}, units: model.UnitsCPM, rows: []model.Row{{Feature: "g", Values: []float64{1}}}}
	data, _ := encode(t, src, model.FormatBinary)

	want := []byte("RNAB")
	want = append(want, binaryVersion, byte(model.UnitsCPM), 1, 1, 's')
	want = append(want, binaryRowMarker, 1, 'g', 0, 0, 0, 0, 0, 0, 0xf0, 0x3f)
	want = append(want, binaryTerminator)
	assert.Equal(t, want, data)
}

func TestEncode_SparseRestoresZeros(t *testing.T) {
	data, _ := encode(t, exampleSource(), model.FormatSparse, WithPrecision(ShortestPrecision))
	assert.Contains(t, string(data), "g1\n", "all-zero row lists no cells")

	table, err := Decode(bytes.NewReader(data), model.FormatSparse)
	require.NoError(t, err)

	var zeros int
	for tr := range table.Triples() {
		if tr.Value == 0 {
			zeros++
		}
	}
	assert.Equal(t, 4, zeros)
}

func TestEncode_Empty(t *testing.T) {
	for _, f := range model.Formats() {
		src := &sliceSource{samples: []string{}}
		data, stats := encode(t, src, f)
		assert.Zero(t, stats.Rows)

		table, err := Decode(bytes.NewReader(data), f)
		require.NoError(t, err, f)
		assert.Empty(t, table.Samples)
		assert.Empty(t, table.Rows)
	}
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	_, err := Encode(t.Context(), &bytes.Buffer{}, exampleSource(), model.Format("xml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode(strings.NewReader(""), model.Format("xml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncode_SourceError(t *testing.T) {
	boom := errors.New("boom")
	src := exampleSource()
	src.err = boom

	stats, err := Encode(t.Context(), &bytes.Buffer{}, src, model.FormatTSV)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, stats.Rows)
}

func TestEncode_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := Encode(ctx, &bytes.Buffer{}, exampleSource(), model.FormatCSV)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecode_Malformed(t *testing.T) {
	tests := map[model.Format]string{
		model.FormatTSV:    "gene\ts1\n",
		model.FormatCSV:    "feature,s1\ng1,abc\n",
		model.FormatSparse: "#samples\ts1\ng1\t5:1\n",
		model.FormatBinary: "RNAX",
		model.FormatJSON:   `{"units":"TPM","samples":["s1"]}` + "\n" + `{"feature":"g1","values":[1,2]}`,
	}
	for f, in := range tests {
		t.Run(string(f), func(t *testing.T) {
			_, err := Decode(strings.NewReader(in), f)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_BinaryTruncated(t *testing.T) {
	data, _ := encode(t, exampleSource(), model.FormatBinary)
	_, err := Decode(bytes.NewReader(data[:len(data)-1]), model.FormatBinary)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestContentTypeAndExtension(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range model.Formats() {
		assert.NotEmpty(t, ContentType(f))
		ext := Extension(f)
		assert.False(t, seen[ext], "extension %s reused", ext)
		seen[ext] = true
	}
	assert.Equal(t, "text/csv", ContentType(model.FormatCSV))
	assert.Equal(t, "jsonl", Extension(model.FormatJSON))
}
