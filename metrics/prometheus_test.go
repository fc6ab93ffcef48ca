package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rnaget/model"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	c.RecordQuery(model.FormatTSV, false, time.Millisecond, nil)
	c.RecordQuery(model.FormatTSV, true, time.Millisecond, nil)
	c.RecordQuery(model.FormatTSV, true, time.Millisecond, nil)
	c.RecordQuery(model.FormatJSON, false, time.Millisecond, errors.New("boom"))
	c.RecordEncode(model.FormatTSV, 12, 300, time.Millisecond, nil)
	c.RecordTicket(model.FormatTSV, 300)
	c.RecordDownload(time.Millisecond, nil)
	c.RecordSweep(4, nil)
	c.RecordSweep(1, errors.New("boom"))

	assert.Equal(t, 1.0, value(t, c.queries.WithLabelValues("tsv", "miss")))
	assert.Equal(t, 2.0, value(t, c.queries.WithLabelValues("tsv", "hit")))
	assert.Equal(t, 1.0, value(t, c.queries.WithLabelValues("json", "error")))
	assert.Equal(t, 12.0, value(t, c.encodeRows.WithLabelValues("tsv")))
	assert.Equal(t, 300.0, value(t, c.encodeBytes.WithLabelValues("tsv")))
	assert.Equal(t, 1.0, value(t, c.tickets.WithLabelValues("tsv")))
	assert.Equal(t, 1.0, value(t, c.downloads.WithLabelValues("ok")))
	assert.Equal(t, 5.0, value(t, c.swept))
	assert.Equal(t, 1.0, value(t, c.sweepErrors))


	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "rnaget_query_duration_seconds")
	assert.Contains(t, names, "rnaget_ticket_payload_bytes")
}

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestPrometheusCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	_, err = NewPrometheusCollector(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
