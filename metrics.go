package diskmap

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordGet is called after each point lookup. hit reports whether the key was present.
	RecordGet(duration time.Duration, hit bool, err error)

	// RecordPut is called after each put. replaced reports whether an existing value was overwritten.
	RecordPut(duration time.Duration, replaced bool, err error)

	// RecordRemove is called after each remove.
	RecordRemove(duration time.Duration, removed bool, err error)

	// RecordRange is called after each Above/Below query with the result size.
	RecordRange(results uint64, duration time.Duration, err error)

	// RecordCommit is called after each commit.
	RecordCommit(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(time.Duration, bool, error)     {}
func (NoopMetricsCollector) RecordPut(time.Duration, bool, error)     {}
func (NoopMetricsCollector) RecordRemove(time.Duration, bool, error)  {}
func (NoopMetricsCollector) RecordRange(uint64, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	GetCount         atomic.Int64
	GetHits          atomic.Int64
	GetErrors        atomic.Int64
	GetTotalNanos    atomic.Int64
	PutCount         atomic.Int64
	PutReplaced      atomic.Int64
	PutErrors        atomic.Int64
	PutTotalNanos    atomic.Int64
	RemoveCount      atomic.Int64
	RemoveHits       atomic.Int64
	RemoveErrors     atomic.Int64
	RangeCount       atomic.Int64
	RangeResults     atomic.Int64
	RangeErrors      atomic.Int64
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitTotalNanos atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, hit bool, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, replaced bool, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if replaced {
		b.PutReplaced.Add(1)
	}
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(duration time.Duration, removed bool, err error) {
	b.RemoveCount.Add(1)
	if removed {
		b.RemoveHits.Add(1)
	}
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordRange implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRange(results uint64, duration time.Duration, err error) {
	b.RangeCount.Add(1)
	b.RangeResults.Add(int64(results))
	if err != nil {
		b.RangeErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:       b.GetCount.Load(),
		GetHits:        b.GetHits.Load(),
		GetErrors:      b.GetErrors.Load(),
		GetAvgNanos:    avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		PutCount:       b.PutCount.Load(),
		PutReplaced:    b.PutReplaced.Load(),
		PutErrors:      b.PutErrors.Load(),
		PutAvgNanos:    avg(b.PutTotalNanos.Load(), b.PutCount.Load()),
		RemoveCount:    b.RemoveCount.Load(),
		RemoveHits:     b.RemoveHits.Load(),
		RemoveErrors:   b.RemoveErrors.Load(),
		RangeCount:     b.RangeCount.Load(),
		RangeResults:   b.RangeResults.Load(),
		RangeErrors:    b.RangeErrors.Load(),
		CommitCount:    b.CommitCount.Load(),
		CommitErrors:   b.CommitErrors.Load(),
		CommitAvgNanos: avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
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
	GetCount       int64
	GetHits        int64
	GetErrors      int64
	GetAvgNanos    int64
	PutCount       int64
	PutReplaced    int64
	PutErrors      int64
	PutAvgNanos    int64
	RemoveCount    int64
	RemoveHits     int64
	RemoveErrors   int64
	RangeCount     int64
	RangeResults   int64
	RangeErrors    int64
	CommitCount    int64
	CommitErrors   int64
	CommitAvgNanos int64
}

// VictoriaMetricsCollector publishes counters and latency histograms to a
// VictoriaMetrics metrics.Set. Register the set with metrics.RegisterSet or
// write it with WritePrometheus.
type VictoriaMetricsCollector struct {
	set *metrics.Set

	gets, getHits, getErrors       *metrics.Counter
	puts, putReplaced, putErrors   *metrics.Counter
	removes, removed, removeErrors *metrics.Counter
	ranges, rangeErrors            *metrics.Counter
	commits, commitErrors          *metrics.Counter

	getLatency, putLatency, removeLatency *metrics.Histogram
	rangeLatency, commitLatency           *metrics.Histogram
	rangeResults                          *metrics.Histogram
}

// NewVictoriaMetricsCollector creates a collector whose series carry the
// given store label.
func NewVictoriaMetricsCollector(store string) *VictoriaMetricsCollector {
	s := metrics.NewSet()
	name := func(metric string) string {
		return fmt.Sprintf(`diskmap_%s{store=%q}`, metric, store)
	}
	return &VictoriaMetricsCollector{
		set:           s,
		gets:          s.NewCounter(name("gets_total")),
		getHits:       s.NewCounter(name("get_hits_total")),
		getErrors:     s.NewCounter(name("get_errors_total")),
		puts:          s.NewCounter(name("puts_total")),
		putReplaced:   s.NewCounter(name("put_replaced_total")),
		putErrors:     s.NewCounter(name("put_errors_total")),
		removes:       s.NewCounter(name("removes_total")),
		removed:       s.NewCounter(name("removed_total")),
		removeErrors:  s.NewCounter(name("remove_errors_total")),
		ranges:        s.NewCounter(name("ranges_total")),
		rangeErrors:   s.NewCounter(name("range_errors_total")),
		commits:       s.NewCounter(name("commits_total")),
		commitErrors:  s.NewCounter(name("commit_errors_total")),
		getLatency:    s.NewHistogram(name("get_duration_seconds")),
		putLatency:    s.NewHistogram(name("put_duration_seconds")),
		removeLatency: s.NewHistogram(name("remove_duration_seconds")),
		rangeLatency:  s.NewHistogram(name("range_duration_seconds")),
		commitLatency: s.NewHistogram(name("commit_duration_seconds")),
		rangeResults:  s.NewHistogram(name("range_results")),
	}
}

// Set returns the underlying metrics set.
func (v *VictoriaMetricsCollector) Set() *metrics.Set {
	return v.set
}

// RecordGet implements MetricsCollector.
func (v *VictoriaMetricsCollector) RecordGet(duration time.Duration, hit bool, err error) {
	v.gets.Inc()
	v.getLatency.Update(duration.Seconds())
	if hit {
		v.getHits.Inc()
	}
	if err != nil {
		v.getErrors.Inc()
	}
}

// RecordPut implements MetricsCollector.
func (v *VictoriaMetricsCollector) RecordPut(duration time.Duration, replaced bool, err error) {
	v.puts.Inc()
	v.putLatency.Update(duration.Seconds())
	if replaced {
		v.putReplaced.Inc()
	}
	if err != nil {
		v.putErrors.Inc()
	}
}

// RecordRemove implements MetricsCollector.
func (v *VictoriaMetricsCollector) RecordRemove(duration time.Duration, removed bool, err error) {
	v.removes.Inc()
	v.removeLatency.Update(duration.Seconds())
	if removed {
		v.removed.Inc()
	}
	if err != nil {
		v.removeErrors.Inc()
	}
}

// RecordRange implements MetricsCollector.
func (v *VictoriaMetricsCollector) RecordRange(results uint64, duration time.Duration, err error) {
	v.ranges.Inc()
	v.rangeLatency.Update(duration.Seconds())
	v.rangeResults.Update(float64(results))
	if err != nil {
		v.rangeErrors.Inc()
	}
}

// RecordCommit implements MetricsCollector.
func (v *VictoriaMetricsCollector) RecordCommit(duration time.Duration, err error) {
	v.commits.Inc()
	v.commitLatency.Update(duration.Seconds())
	if err != nil {
		v.commitErrors.Inc()
	}
}
