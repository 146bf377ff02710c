package observability

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Request outcomes recorded by the connection loop.
const (
	OutcomeServed        = "served"
	OutcomeNotFound      = "not_found"
	OutcomeBadRequest    = "bad_request"
	OutcomeTransferError = "transfer_error"
	OutcomeError         = "error"
)

// Upper bounds of the latency buckets; the last bucket is unbounded.
var bucketBounds = [...]time.Duration{
	100 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
}

// SlowThreshold is the average latency above which Report warns about an
// outcome.
const SlowThreshold = 100 * time.Millisecond

// NumBuckets is the length of OutcomeStats.Buckets.
const NumBuckets = len(bucketBounds) + 1

// LatencyMonitor tracks how long requests take, split by outcome.
type LatencyMonitor struct {
	outcomes sync.Map // string -> *outcomeMetrics
}

type outcomeMetrics struct {
	count   atomic.Uint64
	total   atomic.Uint64
	min     atomic.Uint64
	max     atomic.Uint64
	buckets [NumBuckets]atomic.Uint64
}

// OutcomeStats is a point-in-time copy of one outcome's latencies.
type OutcomeStats struct {
	Outcome string
	Count   uint64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets [NumBuckets]uint64
}

// NewLatencyMonitor creates an empty monitor.
func NewLatencyMonitor() *LatencyMonitor {
	return &LatencyMonitor{}
}

// Record adds one request of the given outcome.
func (m *LatencyMonitor) Record(outcome string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	val, ok := m.outcomes.Load(outcome)
	if !ok {
		val, _ = m.outcomes.LoadOrStore(outcome, &outcomeMetrics{})
	}
	om := val.(*outcomeMetrics)

	ns := uint64(d)
	om.count.Add(1)
	om.total.Add(ns)
	updateMin(&om.min, ns)
	updateMax(&om.max, ns)
	om.buckets[bucketFor(d)].Add(1)
}

// Since records a request that started at start.
func (m *LatencyMonitor) Since(outcome string, start time.Time) {
	m.Record(outcome, time.Since(start))
}

// min holds ns+1 so that zero means unset.
func updateMin(v *atomic.Uint64, ns uint64) {
	for {
		cur := v.Load()
		if cur != 0 && ns+1 >= cur {
			return
		}
		if v.CompareAndSwap(cur, ns+1) {
			return
		}
	}
}

func updateMax(v *atomic.Uint64, ns uint64) {
	for {
		cur := v.Load()
		if ns <= cur {
			return
		}
		if v.CompareAndSwap(cur, ns) {
			return
		}
	}
}

func bucketFor(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// Snapshot returns every recorded outcome, sorted by name.
func (m *LatencyMonitor) Snapshot() []OutcomeStats {
	var out []OutcomeStats
	m.outcomes.Range(func(key, value any) bool {
		om := value.(*outcomeMetrics)
		s := OutcomeStats{
			Outcome: key.(string),
			Count:   om.count.Load(),
			Max:     time.Duration(om.max.Load()),
		}
		if mn := om.min.Load(); mn > 0 {
			s.Min = time.Duration(mn - 1)
		}
		if s.Count > 0 {
			s.Avg = time.Duration(om.total.Load() / s.Count)
		}
		for i := range om.buckets {
			s.Buckets[i] = om.buckets[i].Load()
		}
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Outcome < out[j].Outcome })
	return out
}

// Slow returns the outcomes whose average latency exceeds threshold.
func (m *LatencyMonitor) Slow(threshold time.Duration) []OutcomeStats {
	var slow []OutcomeStats
	for _, s := range m.Snapshot() {
		if s.Count > 0 && s.Avg > threshold {
			slow = append(slow, s)
		}
	}
	return slow
}

// LogValue renders the outcome as a slog group.
func (s OutcomeStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("count", s.Count),
		slog.Duration("min", s.Min),
		slog.Duration("avg", s.Avg),
		slog.Duration("max", s.Max),
	)
}

// Report logs the counters and latencies every interval until ctx is done.
// mon may be nil.
func Report(ctx context.Context, interval time.Duration, logger *slog.Logger, stats *Stats, mon *LatencyMonitor) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("stats", stats.Snapshot().LogAttrs()...)
			if mon == nil {
				continue
			}
			for _, s := range mon.Snapshot() {
				logger.Info("latency", slog.Any(s.Outcome, s))
			}
			for _, s := range mon.Slow(SlowThreshold) {
				logger.Warn("slow requests", slog.Any(s.Outcome, s))
			}
		}
	}
}
