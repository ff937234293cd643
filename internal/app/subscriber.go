// ABOUTME: Long-running subscribe loop over StreamSession
// ABOUTME: Latency tracking, periodic metrics, session reconnection

package app

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/natsgate/natsgate-go/internal/config"
	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/gateway"
	"github.com/natsgate/natsgate-go/pkg/metrics"
	"github.com/natsgate/natsgate-go/pkg/reconnect"
	"github.com/natsgate/natsgate-go/pkg/stream"
)

// Subscriber streams messages from one subscription, reconnecting with a
// fresh session when the transport breaks. The durable cursor lives
// server-side, so a new session resumes where the old one stopped.
type Subscriber struct {
	cfg    config.Config
	dialer stream.Dialer
	policy reconnect.Policy
	agg    *metrics.Aggregator
	sink   event.Sink

	mu      sync.Mutex
	current *stream.Session
}

// NewSubscriber builds the subscribe loop. A nil sink discards events.
func NewSubscriber(cfg config.Config, dialer stream.Dialer, policy reconnect.Policy, agg *metrics.Aggregator, sink event.Sink) *Subscriber {
	if sink == nil {
		sink = event.Nop()
	}
	return &Subscriber{cfg: cfg, dialer: dialer, policy: policy, agg: agg, sink: sink}
}

// Run streams until the session ends cleanly, retries are exhausted, or ctx
// is canceled. Configuration problems (missing durable consumer, bad
// filter) surface immediately without retrying.
func (s *Subscriber) Run(ctx context.Context) error {
	go s.metricsLoop(ctx)

	err := s.policy.Do(ctx, "subscribe", func() error {
		return s.runSession(ctx)
	})

	event.Info(s.sink, "subscriber metrics", s.agg.Snapshot().Fields())
	return err
}

// Stop closes the active session, unblocking its receive loop.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

func (s *Subscriber) runSession(ctx context.Context) error {
	scfg := s.sessionConfig()
	sess := stream.New(scfg, s.dialer, s.sink)

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	if err := sess.Open(ctx); err != nil {
		return err
	}

	return sess.Run(ctx, stream.Handler{
		OnMessage: s.handleMessage,
		OnControl: s.handleControl,
		OnDecodeError: func(error) {
			s.agg.RecordError()
		},
	})
}

func (s *Subscriber) sessionConfig() stream.Config {
	var scfg stream.Config
	if s.cfg.Durable() {
		scfg = stream.Durable(s.cfg.StreamName, s.cfg.ConsumerName)
	} else {
		scfg = stream.Ephemeral(s.cfg.Subject)
	}
	scfg.ReceiveTimeout = s.cfg.ReceiveTimeout
	scfg.MaxMessages = s.cfg.MaxMessages
	return scfg
}

func (s *Subscriber) handleMessage(m gateway.StreamMessage) {
	fields := event.Fields{
		"subject":    m.Subject,
		"sequence":   m.Sequence,
		"size_bytes": m.SizeBytes,
		"data":       preview(m.Data),
	}
	if m.Consumer != "" {
		fields["consumer"] = m.Consumer
	}

	if m.Timestamp != nil {
		latency := time.Now().UTC().Sub(m.Timestamp.Time())
		if latency < 0 {
			latency = 0
		}
		s.agg.RecordSuccessLatency(latency)
		fields["latency_ms"] = float64(latency) / float64(time.Millisecond)
	} else {
		s.agg.RecordSuccess()
	}

	event.Info(s.sink, "message received", fields)

	if n := s.agg.Count(); n > 0 && n%snapshotEvery == 0 {
		event.Info(s.sink, "subscriber metrics", s.agg.Snapshot().Fields())
	}
}

func (s *Subscriber) handleControl(c gateway.Control) {
	event.Info(s.sink, "control frame", event.Fields{
		"type":    c.Type.String(),
		"message": c.Message,
	})
}

func (s *Subscriber) metricsLoop(ctx context.Context) {
	if s.cfg.MetricsInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			event.Info(s.sink, "subscriber metrics", s.agg.Snapshot().Fields())
		}
	}
}

// preview renders a payload for display. UTF-8 decoding is best effort; the
// payload itself stays opaque bytes.
func preview(data []byte) string {
	const max = 100
	if !utf8.Valid(data) {
		return "[binary payload]"
	}
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
