package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics exposes a small in-memory counter set for the confirmation
// worker.
type Metrics struct {
	consumed   atomic.Int64
	submitted  atomic.Int64
	confirmed  atomic.Int64
	declined   atomic.Int64
	timedOut   atomic.Int64
	cancelled  atomic.Int64
	failed     atomic.Int64
	duplicates atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConsumed()  { m.consumed.Add(1) }
func (m *Metrics) IncSubmitted() { m.submitted.Add(1) }
func (m *Metrics) IncConfirmed() { m.confirmed.Add(1) }
func (m *Metrics) IncDeclined()  { m.declined.Add(1) }
func (m *Metrics) IncTimedOut()  { m.timedOut.Add(1) }
func (m *Metrics) IncCancelled() { m.cancelled.Add(1) }
func (m *Metrics) IncFailed()    { m.failed.Add(1) }
func (m *Metrics) IncDuplicate() { m.duplicates.Add(1) }

// Handler exposes the counters as JSON so we do not need a heavy metrics
// dependency for a worker this size.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"consumed":   m.consumed.Load(),
			"submitted":  m.submitted.Load(),
			"confirmed":  m.confirmed.Load(),
			"declined":   m.declined.Load(),
			"timed_out":  m.timedOut.Load(),
			"cancelled":  m.cancelled.Load(),
			"failed":     m.failed.Load(),
			"duplicates": m.duplicates.Load(),
		})
	})
}
