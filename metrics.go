package rnaget

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/rnaget/model"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the metrics
// package ships a Prometheus implementation.
type MetricsCollector interface {
	// RecordQuery is called after each query request.
	// cached is true when an existing ticket was returned.
	RecordQuery(format model.Format, cached bool, duration time.Duration, err error)

	// RecordEncode is called after each artifact build.
	RecordEncode(format model.Format, rows int, bytes int64, duration time.Duration, err error)

	// RecordTicket is called for each issued ticket with its stored size.
	RecordTicket(format model.Format, bytes int64)

	// RecordDownload is called after each download request.
	RecordDownload(duration time.Duration, err error)

	// RecordSweep is called after each sweep with the number of removed tickets.
	RecordSweep(removed int, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQuery(model.Format, bool, time.Duration, error)       {}
func (NoopMetricsCollector) RecordEncode(model.Format, int, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordTicket(model.Format, int64)                           {}
func (NoopMetricsCollector) RecordDownload(time.Duration, error)                        {}
func (NoopMetricsCollector) RecordSweep(int, error)                                     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryCacheHits   atomic.Int64
	QueryTotalNanos  atomic.Int64
	EncodeCount      atomic.Int64
	EncodeErrors     atomic.Int64
	EncodeRows       atomic.Int64
	EncodeBytes      atomic.Int64
	EncodeTotalNanos atomic.Int64
	TicketCount      atomic.Int64
	TicketBytes      atomic.Int64
	DownloadCount    atomic.Int64
	DownloadErrors   atomic.Int64
	SweepCount       atomic.Int64
	SweepRemoved     atomic.Int64
	SweepErrors      atomic.Int64
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ model.Format, cached bool, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	} else if cached {
		b.QueryCacheHits.Add(1)
	}
}

// RecordEncode implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEncode(_ model.Format, rows int, bytes int64, duration time.Duration, err error) {
	b.EncodeCount.Add(1)
	b.EncodeRows.Add(int64(rows))
	b.EncodeBytes.Add(bytes)
	b.EncodeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.EncodeErrors.Add(1)
	}
}

// RecordTicket implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTicket(_ model.Format, bytes int64) {
	b.TicketCount.Add(1)
	b.TicketBytes.Add(bytes)
}

// RecordDownload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDownload(_ time.Duration, err error) {
	b.DownloadCount.Add(1)
	if err != nil {
		b.DownloadErrors.Add(1)
	}
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(removed int, err error) {
	b.SweepCount.Add(1)
	b.SweepRemoved.Add(int64(removed))
	if err != nil {
		b.SweepErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		QueryCount:     b.QueryCount.Load(),
		QueryErrors:    b.QueryErrors.Load(),
		QueryCacheHits: b.QueryCacheHits.Load(),
		QueryAvgNanos:  avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		EncodeCount:    b.EncodeCount.Load(),
		EncodeErrors:   b.EncodeErrors.Load(),
		EncodeRows:     b.EncodeRows.Load(),
		EncodeBytes:    b.EncodeBytes.Load(),
		EncodeAvgNanos: avg(b.EncodeTotalNanos.Load(), b.EncodeCount.Load()),
		TicketCount:    b.TicketCount.Load(),
		TicketBytes:    b.TicketBytes.Load(),
		DownloadCount:  b.DownloadCount.Load(),
		DownloadErrors: b.DownloadErrors.Load(),
		SweepCount:     b.SweepCount.Load(),
		SweepRemoved:   b.SweepRemoved.Load(),
		SweepErrors:    b.SweepErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	QueryCount     int64
	QueryErrors    int64
	QueryCacheHits int64
	QueryAvgNanos  int64
	EncodeCount    int64
	EncodeErrors   int64
	EncodeRows     int64
	EncodeBytes    int64
	EncodeAvgNanos int64
	TicketCount    int64
	TicketBytes    int64
	DownloadCount  int64
	DownloadErrors int64
	SweepCount     int64
	SweepRemoved   int64
	SweepErrors    int64
}
