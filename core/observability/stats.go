package observability

import (
	"sync/atomic"
	"time"
)

// Stats holds server-wide counters shared by all connection workers.
type Stats struct {
	started time.Time

	accepted       atomic.Uint64
	active         atomic.Int64
	rejected       atomic.Uint64
	requests       atomic.Uint64
	served         atomic.Uint64
	notFound       atomic.Uint64
	badRequests    atomic.Uint64
	transferErrors atomic.Uint64
	bytesSent      atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Uptime         time.Duration
	Accepted       uint64
	Active         int64
	Rejected       uint64
	Requests       uint64
	Served         uint64
	NotFound       uint64
	BadRequests    uint64
	TransferErrors uint64
	BytesSent      uint64
}

// NewStats creates a zeroed counter set.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

func (s *Stats) ConnOpened() {
	s.accepted.Add(1)
	s.active.Add(1)
}

func (s *Stats) ConnClosed() { s.active.Add(-1) }

// ConnRejected counts accepted sockets dropped before a worker started.
func (s *Stats) ConnRejected() { s.rejected.Add(1) }

func (s *Stats) Request()    { s.requests.Add(1) }
func (s *Stats) BadRequest() { s.badRequests.Add(1) }
func (s *Stats) NotFound()   { s.notFound.Add(1) }

// Served records a completed 200 response and its body size.
func (s *Stats) Served(body uint64) {
	s.served.Add(1)
	s.bytesSent.Add(body)
}

// TransferFailed records an aborted body along with the bytes that made it out.
func (s *Stats) TransferFailed(sent uint64) {
	s.transferErrors.Add(1)
	s.bytesSent.Add(sent)
}

// Snapshot reads every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Uptime:         time.Since(s.started),
		Accepted:       s.accepted.Load(),
		Active:         s.active.Load(),
		Rejected:       s.rejected.Load(),
		Requests:       s.requests.Load(),
		Served:         s.served.Load(),
		NotFound:       s.notFound.Load(),
		BadRequests:    s.badRequests.Load(),
		TransferErrors: s.transferErrors.Load(),
		BytesSent:      s.bytesSent.Load(),
	}
}

// LogAttrs flattens the snapshot into slog key/value pairs.
func (s Snapshot) LogAttrs() []any {
	return []any{
		"uptime", s.Uptime.Round(time.Millisecond),
		"accepted", s.Accepted,
		"active", s.Active,
		"rejected", s.Rejected,
		"requests", s.Requests,
		"served", s.Served,
		"not_found", s.NotFound,
		"bad_requests", s.BadRequests,
		"transfer_errors", s.TransferErrors,
		"bytes_sent", s.BytesSent,
	}
}
