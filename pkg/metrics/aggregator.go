// ABOUTME: Delivery metrics shared by the publish and subscribe paths
// ABOUTME: Lock-free counters with derived, on-demand snapshots

// Package metrics aggregates delivery health counters. One Aggregator is
// shared by reference between the publish and subscribe paths; all mutation
// is atomic, so concurrent recording never loses updates. Derived values
// (throughput, error rate, average latency) are computed at snapshot time
// and never stored, so they cannot drift.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/natsgate/natsgate-go/pkg/event"
)

// Aggregator keeps running delivery counters.
type Aggregator struct {
	now   func() time.Time
	start time.Time

	count          atomic.Uint64
	errors         atomic.Uint64
	latencyTotal   atomic.Int64 // nanoseconds
	latencySamples atomic.Uint64
}

// New returns an aggregator whose uptime starts now.
func New() *Aggregator {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Aggregator {
	return &Aggregator{now: now, start: now()}
}

// RecordSuccess counts one delivered message with no latency sample. The
// publish path uses this form; acks carry no end-to-end latency.
func (a *Aggregator) RecordSuccess() {
	a.count.Add(1)
}

// RecordSuccessLatency counts one delivered message and its observed
// latency. The subscribe path uses this form.
func (a *Aggregator) RecordSuccessLatency(d time.Duration) {
	a.count.Add(1)
	a.latencyTotal.Add(int64(d))
	a.latencySamples.Add(1)
}

// RecordError counts one failed delivery.
func (a *Aggregator) RecordError() {
	a.errors.Add(1)
}

// Count returns the number of successes recorded so far.
func (a *Aggregator) Count() uint64 {
	return a.count.Load()
}

// Snapshot is a point-in-time view with derived rates. All ratios are 0
// when their denominator is 0.
type Snapshot struct {
	Count          uint64
	ErrorCount     uint64
	Uptime         time.Duration
	Throughput     float64 // messages per second of uptime
	AverageLatency time.Duration
	ErrorRate      float64 // errors per success
}

// Snapshot computes the current derived view.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Count:      a.count.Load(),
		ErrorCount: a.errors.Load(),
		Uptime:     a.now().Sub(a.start),
	}
	if s.Uptime > 0 {
		s.Throughput = float64(s.Count) / s.Uptime.Seconds()
	}
	if samples := a.latencySamples.Load(); samples > 0 {
		s.AverageLatency = time.Duration(a.latencyTotal.Load() / int64(samples))
	}
	if s.Count > 0 {
		s.ErrorRate = float64(s.ErrorCount) / float64(s.Count)
	}
	return s
}

// Fields renders the snapshot as structured event fields.
func (s Snapshot) Fields() event.Fields {
	return event.Fields{
		"total_messages":      s.Count,
		"total_errors":        s.ErrorCount,
		"uptime_seconds":      s.Uptime.Seconds(),
		"messages_per_second": s.Throughput,
		"average_latency_ms":  float64(s.AverageLatency) / float64(time.Millisecond),
		"error_rate":          s.ErrorRate,
	}
}
