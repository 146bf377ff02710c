package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyMonitor(t *testing.T) {
	m := NewLatencyMonitor()

	m.Record(OutcomeServed, 10*time.Millisecond)
	m.Record(OutcomeServed, 20*time.Millisecond)
	m.Record(OutcomeServed, 30*time.Millisecond)
	m.Record(OutcomeNotFound, 0)

	snap := m.Snapshot()
	require.Len(t, snap, 2)

	nf := snap[0]
	assert.Equal(t, OutcomeNotFound, nf.Outcome)
	assert.Equal(t, uint64(1), nf.Count)
	assert.Zero(t, nf.Min)
	assert.Equal(t, uint64(1), nf.Buckets[0])

	served := snap[1]
	assert.Equal(t, OutcomeServed, served.Outcome)
	assert.Equal(t, uint64(3), served.Count)
	assert.Equal(t, 10*time.Millisecond, served.Min)
	assert.Equal(t, 30*time.Millisecond, served.Max)
	assert.Equal(t, 20*time.Millisecond, served.Avg)
	assert.Equal(t, uint64(3), served.Buckets[bucketFor(10*time.Millisecond)], "10ms to 30ms share the <50ms bucket")
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, 0, bucketFor(0))
	assert.Equal(t, 1, bucketFor(100*time.Microsecond))
	assert.Equal(t, 3, bucketFor(9*time.Millisecond))
	assert.Equal(t, 4, bucketFor(10*time.Millisecond))
	assert.Equal(t, 4, bucketFor(49*time.Millisecond))
	assert.Equal(t, 5, bucketFor(50*time.Millisecond))
	assert.Equal(t, NumBuckets-1, bucketFor(time.Minute))
}

func TestSlowOutcomes(t *testing.T) {
	m := NewLatencyMonitor()
	for i := 0; i < 100; i++ {
		m.Record(OutcomeServed, time.Millisecond)
		m.Record(OutcomeTransferError, 150*time.Millisecond)
	}

	slow := m.Slow(100 * time.Millisecond)
	require.Len(t, slow, 1)
	assert.Equal(t, OutcomeTransferError, slow[0].Outcome)
}

func TestLatencyMonitorConcurrent(t *testing.T) {
	m := NewLatencyMonitor()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Record(OutcomeServed, time.Duration(g*1000+i)*time.Microsecond)
			}
		}(g)
	}
	wg.Wait()

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint64(8000), snap[0].Count)
	assert.Zero(t, snap[0].Min)
	assert.Equal(t, 7999*time.Microsecond, snap[0].Max)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReport(t *testing.T) {
	out := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(out, nil))

	stats := NewStats()
	stats.Served(42)
	mon := NewLatencyMonitor()
	mon.Record(OutcomeServed, 2*time.Millisecond)
	mon.Record(OutcomeTransferError, 2*SlowThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Report(ctx, 10*time.Millisecond, logger, stats, mon)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "slow requests")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	logs := out.String()
	assert.Contains(t, logs, "bytes_sent=42")
	assert.Contains(t, logs, "served.count=1")
	assert.Contains(t, logs, `level=WARN msg="slow requests" transfer_error.count=1`)
	assert.NotContains(t, logs, `msg="slow requests" served.`)
}

func TestReportDisabled(t *testing.T) {
	// Returns at once when the interval is not positive.
	Report(context.Background(), 0, slog.Default(), NewStats(), nil)
}

func BenchmarkRecord(b *testing.B) {
	m := NewLatencyMonitor()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Record(OutcomeServed, 10*time.Millisecond)
	}
}
