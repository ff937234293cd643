// ABOUTME: Pairs publish requests with their gateway acknowledgements
// ABOUTME: Transport-agnostic; carries the timeout/transport/protocol split

// Package publish correlates an outgoing publish envelope with its
// acknowledgement. The correlator is stateless per call: it keeps no request
// queue and offers no pipelining beyond what the transport itself provides.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/gateway"
)

// RequestTransport sends one encoded publish envelope and returns the raw
// acknowledgement payload. Implementations return *gateway.TransportError
// for connection-level failures and *gateway.ProtocolError for server-side
// rejections.
type RequestTransport interface {
	RoundTrip(ctx context.Context, subject string, payload []byte) ([]byte, error)
}

// Correlator publishes envelopes and decodes their acks.
type Correlator struct {
	transport RequestTransport
	sink      event.Sink
}

// NewCorrelator builds a correlator over the given transport. A nil sink
// discards events.
func NewCorrelator(t RequestTransport, sink event.Sink) *Correlator {
	if sink == nil {
		sink = event.Nop()
	}
	return &Correlator{transport: t, sink: sink}
}

// Publish sends req and waits up to timeout for its acknowledgement.
//
// A missing ack is a *gateway.TimeoutError; a failed send is a
// *gateway.TransportError; an ack that fails to decode is a
// *gateway.ProtocolError. An ack with Published=false decoded fine, so it is
// returned to the caller as a successful call; rejection is an
// application-level outcome.
func (c *Correlator) Publish(ctx context.Context, req gateway.PublishRequest, timeout time.Duration) (gateway.PublishAck, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload := gateway.EncodePublishRequest(req)
	raw, err := c.transport.RoundTrip(ctx, req.Subject, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return gateway.PublishAck{}, &gateway.TimeoutError{Op: "publish " + req.MessageID, Wait: timeout}
		}
		return gateway.PublishAck{}, err
	}

	ack, err := gateway.DecodePublishAck(raw)
	if err != nil {
		return gateway.PublishAck{}, &gateway.ProtocolError{Message: fmt.Sprintf("publish ack: %v", err)}
	}

	event.Debug(c.sink, "publish acknowledged", event.Fields{
		"message_id": req.MessageID,
		"subject":    ack.Subject,
		"stream":     ack.Stream,
		"sequence":   ack.Sequence,
		"published":  ack.Published,
	})
	return ack, nil
}
