// ABOUTME: Long-running publish loop over the correlator
// ABOUTME: Generates events on an interval and tracks delivery metrics

// Package app wires the client components into the bridge's two long-running
// roles: a publish loop and a subscribe loop. Each role runs as one
// goroutine; the metrics aggregator is the only state they share.
package app

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/natsgate/natsgate-go/internal/config"
	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/gateway"
	"github.com/natsgate/natsgate-go/pkg/metrics"
	"github.com/natsgate/natsgate-go/pkg/reconnect"
)

// snapshotEvery is how many successes pass between metrics snapshot events.
const snapshotEvery = 50

// acker is the slice of the publish correlator the loop needs.
type acker interface {
	Publish(ctx context.Context, req gateway.PublishRequest, timeout time.Duration) (gateway.PublishAck, error)
}

// Publisher publishes a generated event on every interval tick.
type Publisher struct {
	cfg    config.Config
	ack    acker
	policy reconnect.Policy
	agg    *metrics.Aggregator
	sink   event.Sink

	seq          atomic.Uint64
	lastSnapshot uint64 // success count when the last snapshot event fired
}

// NewPublisher builds the publish loop. A nil sink discards events.
func NewPublisher(cfg config.Config, correlator acker, policy reconnect.Policy, agg *metrics.Aggregator, sink event.Sink) *Publisher {
	if sink == nil {
		sink = event.Nop()
	}
	return &Publisher{cfg: cfg, ack: correlator, policy: policy, agg: agg, sink: sink}
}

// Run publishes until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	event.Info(p.sink, "starting publish loop", event.Fields{
		"subject":          p.cfg.Subject,
		"interval_seconds": p.cfg.PublishInterval.Seconds(),
	})

	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			event.Info(p.sink, "publisher metrics", p.agg.Snapshot().Fields())
			return ctx.Err()
		case <-ticker.C:
			p.publishOne(ctx)
			p.maybeSnapshot()
		}
	}
}

// maybeSnapshot emits a metrics event once per snapshotEvery successes. A
// run of failed ticks must not re-emit the same snapshot.
func (p *Publisher) maybeSnapshot() {
	n := p.agg.Count()
	if n-p.lastSnapshot < snapshotEvery {
		return
	}
	p.lastSnapshot = n
	event.Info(p.sink, "publisher metrics", p.agg.Snapshot().Fields())
}

func (p *Publisher) publishOne(ctx context.Context) {
	req := p.buildRequest()

	var ack gateway.PublishAck
	err := p.policy.Do(ctx, "publish", func() error {
		a, err := p.ack.Publish(ctx, req, p.cfg.PublishTimeout)
		if err != nil {
			return err
		}
		ack = a
		return nil
	})
	if err != nil {
		p.agg.RecordError()
		event.Error(p.sink, "publish failed", event.Fields{
			"message_id": req.MessageID,
			"subject":    req.Subject,
			"error":      err.Error(),
		})
		return
	}

	if !ack.Published {
		// Well-formed ack, application-level rejection.
		p.agg.RecordError()
		event.Warn(p.sink, "publish rejected", event.Fields{
			"message_id": req.MessageID,
			"subject":    ack.Subject,
			"stream":     ack.Stream,
		})
		return
	}

	p.agg.RecordSuccess()
	event.Info(p.sink, "message published", event.Fields{
		"message_id": req.MessageID,
		"subject":    ack.Subject,
		"stream":     ack.Stream,
		"sequence":   ack.Sequence,
		"size_bytes": len(req.Data),
	})
}

var eventTypes = []string{"user.login", "user.logout", "order.created", "payment.processed"}
var randomFields = []string{"alpha", "beta", "gamma", "delta"}

func (p *Publisher) buildRequest() gateway.PublishRequest {
	n := p.seq.Add(1)
	body, _ := json.Marshal(map[string]any{
		"event_type":   eventTypes[rand.Intn(len(eventTypes))],
		"value":        rand.Intn(1000) + 1,
		"random_field": randomFields[rand.Intn(len(randomFields))],
	})

	ts := gateway.NewTimestamp(time.Now().UTC())
	return gateway.PublishRequest{
		MessageID: uuid.New().String(),
		Subject:   p.cfg.Subject,
		Source:    p.cfg.Hostname,
		Timestamp: &ts,
		Data:      body,
		Metadata: map[string]string{
			"client":   "natsgate-go",
			"sequence": strconv.FormatUint(n, 10),
		},
	}
}
