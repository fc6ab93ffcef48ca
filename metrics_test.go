package rnaget

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/rnaget/model"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}
	boom := errors.New("boom")

	m.RecordQuery(model.FormatTSV, false, 2*time.Millisecond, nil)
	m.RecordQuery(model.FormatTSV, true, 4*time.Millisecond, nil)
	m.RecordQuery(model.FormatCSV, false, 0, boom)
	m.RecordEncode(model.FormatTSV, 10, 400, time.Millisecond, nil)
	m.RecordEncode(model.FormatTSV, 0, 0, time.Millisecond, boom)
	m.RecordTicket(model.FormatTSV, 400)
	m.RecordDownload(time.Millisecond, nil)
	m.RecordDownload(time.Millisecond, boom)
	m.RecordSweep(3, nil)
	m.RecordSweep(0, boom)

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats.QueryCount)
	assert.Equal(t, int64(1), stats.QueryErrors)
	assert.Equal(t, int64(1), stats.QueryCacheHits)
	assert.Equal(t, int64(2*time.Millisecond), stats.QueryAvgNanos)
	assert.Equal(t, int64(2), stats.EncodeCount)
	assert.Equal(t, int64(1), stats.EncodeErrors)
	assert.Equal(t, int64(10), stats.EncodeRows)
	assert.Equal(t, int64(400), stats.EncodeBytes)
	assert.Equal(t, int64(1), stats.TicketCount)
	assert.Equal(t, int64(400), stats.TicketBytes)
	assert.Equal(t, int64(2), stats.DownloadCount)
	assert.Equal(t, int64(1), stats.DownloadErrors)
	assert.Equal(t, int64(2), stats.SweepCount)
	assert.Equal(t, int64(3), stats.SweepRemoved)
	assert.Equal(t, int64(1), stats.SweepErrors)
}

func TestNoopMetricsCollector(t *testing.T) {
	var m MetricsCollector = NoopMetricsCollector{}
	m.RecordQuery(model.FormatTSV, false, time.Second, nil)
	m.RecordSweep(1, nil)
}
