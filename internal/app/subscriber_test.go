// ABOUTME: Tests for the subscribe loop
// ABOUTME: Scripted dialer feeds frames through a full session lifecycle

package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/gateway"
	"github.com/natsgate/natsgate-go/pkg/metrics"
	"github.com/natsgate/natsgate-go/pkg/reconnect"
	"github.com/natsgate/natsgate-go/pkg/stream"
)

type scriptedTransport struct {
	mu    sync.Mutex
	steps [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedTransport(steps ...[]byte) *scriptedTransport {
	return &scriptedTransport{steps: steps, closed: make(chan struct{})}
}

func (t *scriptedTransport) Receive(timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	if len(t.steps) == 0 {
		t.mu.Unlock()
		<-t.closed
		return nil, &gateway.TransportError{Op: "receive", Err: errors.New("closed")}
	}
	raw := t.steps[0]
	t.steps = t.steps[1:]
	t.mu.Unlock()
	return raw, nil
}

func (t *scriptedTransport) Close(grace time.Duration) error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

type scriptedDialer struct {
	mu         sync.Mutex
	transports []*scriptedTransport
	targets    []stream.Target
}

func (d *scriptedDialer) Dial(ctx context.Context, target stream.Target) (stream.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, target)
	if len(d.transports) == 0 {
		return nil, &gateway.TransportError{Op: "dial", Err: errors.New("no transport scripted")}
	}
	t := d.transports[0]
	d.transports = d.transports[1:]
	return t, nil
}

func messageRaw(subject string, seq uint64, withTimestamp bool) []byte {
	m := &gateway.StreamMessage{Subject: subject, Sequence: seq, Data: []byte("payload")}
	if withTimestamp {
		ts := gateway.NewTimestamp(time.Now().UTC().Add(-10 * time.Millisecond))
		m.Timestamp = &ts
	}
	return gateway.EncodeFrame(gateway.Frame{Kind: gateway.KindMessage, Message: m})
}

func closeRaw() []byte {
	return gateway.EncodeFrame(gateway.Frame{
		Kind:    gateway.KindControl,
		Control: &gateway.Control{Type: gateway.ControlClose},
	})
}

func TestSubscriberStreamsToServerClose(t *testing.T) {
	dialer := &scriptedDialer{transports: []*scriptedTransport{newScriptedTransport(
		messageRaw("events.a", 1, true),
		messageRaw("events.a", 2, false),
		closeRaw(),
	)}}
	agg := metrics.New()
	sub := NewSubscriber(testConfig(), dialer, reconnect.Policy{}, agg, event.Nop())

	err := sub.Run(context.Background())

	require.NoError(t, err)
	s := agg.Snapshot()
	assert.Equal(t, uint64(2), s.Count)
	assert.Zero(t, s.ErrorCount)
	assert.Positive(t, s.AverageLatency) // only the stamped message sampled
}

func TestSubscriberUsesDurableTarget(t *testing.T) {
	dialer := &scriptedDialer{transports: []*scriptedTransport{newScriptedTransport(closeRaw())}}
	cfg := testConfig()
	cfg.StreamName = "EVENTS"
	cfg.ConsumerName = "worker-1"
	cfg.MaxMessages = 7
	sub := NewSubscriber(cfg, dialer, reconnect.Policy{}, metrics.New(), event.Nop())

	require.NoError(t, sub.Run(context.Background()))

	require.Len(t, dialer.targets, 1)
	assert.Equal(t, stream.ModeDurable, dialer.targets[0].Mode)
	assert.Equal(t, "EVENTS", dialer.targets[0].StreamName)
	assert.Equal(t, "worker-1", dialer.targets[0].ConsumerName)
}

func TestSubscriberReconnectsAfterTransportFailure(t *testing.T) {
	// First session dies mid-stream; the retry policy opens a second one
	// that ends cleanly.
	broken := newScriptedTransport(messageRaw("events.a", 1, false))
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = broken.Close(0) // turns the blocked Receive into a transport error
	}()
	healthy := newScriptedTransport(messageRaw("events.a", 2, false), closeRaw())

	dialer := &scriptedDialer{transports: []*scriptedTransport{broken, healthy}}
	agg := metrics.New()
	policy := reconnect.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	sub := NewSubscriber(testConfig(), dialer, policy, agg, event.Nop())

	err := sub.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, dialer.targets, 2)
	assert.Equal(t, uint64(2), agg.Snapshot().Count)
}

func TestSubscriberDecodeErrorsCountAsErrors(t *testing.T) {
	dialer := &scriptedDialer{transports: []*scriptedTransport{newScriptedTransport(
		[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		closeRaw(),
	)}}
	agg := metrics.New()
	sub := NewSubscriber(testConfig(), dialer, reconnect.Policy{}, agg, event.Nop())

	require.NoError(t, sub.Run(context.Background()))

	s := agg.Snapshot()
	assert.Zero(t, s.Count)
	assert.Equal(t, uint64(1), s.ErrorCount)
}

func TestSubscriberStopUnblocks(t *testing.T) {
	dialer := &scriptedDialer{transports: []*scriptedTransport{newScriptedTransport()}}
	sub := NewSubscriber(testConfig(), dialer, reconnect.Policy{}, metrics.New(), event.Nop())

	done := make(chan error, 1)
	go func() {
		done <- sub.Run(context.Background())
	}()

	time.Sleep(30 * time.Millisecond)
	sub.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestSubscriberToleratesZeroMetricsInterval(t *testing.T) {
	dialer := &scriptedDialer{transports: []*scriptedTransport{newScriptedTransport(
		messageRaw("events.a", 1, false),
		closeRaw(),
	)}}
	cfg := testConfig()
	cfg.MetricsInterval = 0 // skips the ticker loop instead of panicking
	agg := metrics.New()
	sub := NewSubscriber(cfg, dialer, reconnect.Policy{}, agg, event.Nop())

	require.NoError(t, sub.Run(context.Background()))
	assert.Equal(t, uint64(1), agg.Snapshot().Count)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello", preview([]byte("hello")))
	assert.Equal(t, "[binary payload]", preview([]byte{0xff, 0xfe}))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := preview(long)
	assert.Len(t, got, 103) // 100 chars plus ellipsis
}

func TestSubscriberDoesNotRetryConfigurationErrors(t *testing.T) {
	dialer := &scriptedDialer{} // every dial fails
	cfg := testConfig()
	cfg.Subject = "events..bad" // rejected before any dial
	policy := reconnect.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	sub := NewSubscriber(cfg, dialer, policy, metrics.New(), event.Nop())

	err := sub.Run(context.Background())

	assert.True(t, gateway.IsConfiguration(err))
	assert.Empty(t, dialer.targets)
}
