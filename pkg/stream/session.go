// ABOUTME: StreamSession state machine over a duplex frame transport
// ABOUTME: Drives one subscription: receive loop, timeouts, drain, close

// Package stream drives one gateway subscription over a duplex byte
// transport. A Session decodes each inbound frame and dispatches either a
// control event or a data message to the caller's handler, applying a
// per-receive timeout. Sessions are single-use: terminal states are final,
// and resuming a durable consumer simply means opening a fresh session,
// since the cursor lives server-side.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/gateway"
)

// State is the session lifecycle state.
//
//	IDLE → CONNECTING → STREAMING → DRAINING → CLOSED
//
// ERRORED is absorbing, reachable from CONNECTING and STREAMING. CLOSED and
// ERRORED are final.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateDraining
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateErrored:
		return "ERRORED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Transport is the duplex byte stream a session reads frames from. The
// session exclusively owns its transport for its lifetime.
//
// Receive blocks up to timeout for the next binary frame; an expired wait is
// a *gateway.TimeoutError, a broken or closed connection a
// *gateway.TransportError. Zero timeout blocks indefinitely. Close performs
// a best-effort shutdown within grace and must be idempotent, and must
// unblock a concurrent Receive.
type Transport interface {
	Receive(timeout time.Duration) ([]byte, error)
	Close(grace time.Duration) error
}

// Dialer opens a transport for a subscription target. A durable target
// whose consumer does not exist fails with *gateway.ConfigurationError,
// distinct from a generic *gateway.TransportError.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Transport, error)
}

// Handler receives decoded traffic from the session. Callbacks run on the
// session's receive goroutine in wire order; nil callbacks are skipped.
type Handler struct {
	OnMessage     func(gateway.StreamMessage)
	OnControl     func(gateway.Control)
	OnDecodeError func(error)
}

// drainGrace bounds the transport shutdown handshake during drain.
const drainGrace = 2 * time.Second

// Session drives one subscription.
type Session struct {
	cfg    Config
	dialer Dialer
	sink   event.Sink

	state     atomic.Int32
	received  atomic.Uint64
	lastAlive atomic.Int64 // unix nanos of the last decoded frame

	closing   atomic.Bool
	closeOnce sync.Once

	mu        sync.Mutex
	transport Transport // Close may run concurrently with Open's assignment
	runErr    error
}

func (s *Session) setTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

func (s *Session) getTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// New builds an idle session. A nil sink discards events.
func New(cfg Config, dialer Dialer, sink event.Sink) *Session {
	if sink == nil {
		sink = event.Nop()
	}
	return &Session{cfg: cfg, dialer: dialer, sink: sink}
}

// Open validates the subscription target and dials the transport. It moves
// the session IDLE → CONNECTING → STREAMING, or into ERRORED if the target
// is invalid or the handshake fails. No network I/O happens before Open.
func (s *Session) Open(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("session already opened (state %s)", s.State())
	}

	if err := s.cfg.validate(); err != nil {
		s.fail(err)
		return err
	}

	event.Info(s.sink, "opening subscription", event.Fields{
		"mode":           s.cfg.Mode.String(),
		"subject_filter": s.cfg.SubjectFilter,
		"stream":         s.cfg.StreamName,
		"consumer":       s.cfg.ConsumerName,
	})

	t, err := s.dialer.Dial(ctx, s.cfg.target())
	if err != nil {
		s.fail(err)
		return err
	}

	s.setTransport(t)
	s.lastAlive.Store(time.Now().UnixNano())
	s.state.Store(int32(StateStreaming))
	return nil
}

// Run executes the receive loop until the session reaches a terminal state.
// It returns nil when the session drained cleanly (server CLOSE, message
// cap, bounded-run timeout, or caller Close) and the terminal error when the
// session errored. The transport-level handshake, not a SUBSCRIBE_ACK,
// gates entry to streaming; the ack is just forwarded as a readiness signal.
func (s *Session) Run(ctx context.Context, h Handler) error {
	if s.State() != StateStreaming {
		return fmt.Errorf("session not streaming (state %s)", s.State())
	}

	for {
		if s.closing.Load() {
			s.drain("close requested")
			return nil
		}
		select {
		case <-ctx.Done():
			s.drain("context canceled")
			return ctx.Err()
		default:
		}

		raw, err := s.getTransport().Receive(s.cfg.ReceiveTimeout)
		if err != nil {
			switch {
			case s.closing.Load():
				s.drain("close requested")
				return nil
			case ctx.Err() != nil:
				s.drain("context canceled")
				return ctx.Err()
			case gateway.IsTimeout(err):
				// No data yet. Only a bounded run treats this as the end
				// of the stream; unbounded streaming keeps waiting.
				if s.cfg.MaxMessages > 0 {
					s.drain("receive timeout on bounded run")
					return nil
				}
				continue
			default:
				terr := asTransportError(err)
				s.fail(terr)
				return terr
			}
		}

		frame, derr := gateway.DecodeFrame(raw)
		if derr != nil {
			// Fatal to this read, not to the session.
			event.Warn(s.sink, "dropping undecodable frame", event.Fields{
				"error": derr.Error(),
			})
			if h.OnDecodeError != nil {
				h.OnDecodeError(derr)
			}
			continue
		}
		s.lastAlive.Store(time.Now().UnixNano())

		switch frame.Kind {
		case gateway.KindControl:
			ctl := *frame.Control
			if h.OnControl != nil {
				h.OnControl(ctl)
			}
			switch ctl.Type {
			case gateway.ControlClose:
				s.drain("server close")
				return nil
			case gateway.ControlError:
				perr := &gateway.ProtocolError{Message: ctl.Message}
				s.fail(perr)
				return perr
			default:
				// SUBSCRIBE_ACK is readiness, KEEPALIVE is liveness;
				// neither changes state.
			}

		case gateway.KindMessage:
			msg := *frame.Message
			n := s.received.Add(1)
			if h.OnMessage != nil {
				h.OnMessage(msg)
			}
			if s.cfg.MaxMessages > 0 && n >= uint64(s.cfg.MaxMessages) {
				s.drain("message cap reached")
				return nil
			}
		}
	}
}

// Close requests shutdown from the caller's side. It unblocks an in-flight
// receive; the run loop then drains and closes. Closing an idle session just
// finalizes it. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
			return
		}
		if t := s.getTransport(); t != nil {
			// Unblocks Receive; drain's own Close is idempotent.
			_ = t.Close(drainGrace)
		}
	})
}

// drain performs best-effort transport shutdown and finalizes the session.
// Failures here are logged, not re-raised: the logical session already
// succeeded.
func (s *Session) drain(reason string) {
	s.state.Store(int32(StateDraining))
	event.Info(s.sink, "draining session", event.Fields{
		"reason":   reason,
		"received": s.received.Load(),
	})
	if t := s.getTransport(); t != nil {
		if err := t.Close(drainGrace); err != nil {
			event.Warn(s.sink, "transport shutdown failed during drain", event.Fields{
				"error": err.Error(),
			})
		}
	}
	s.state.Store(int32(StateClosed))
}

// fail moves the session into ERRORED and records the cause.
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
	if t := s.getTransport(); t != nil {
		_ = t.Close(0)
	}
	s.state.Store(int32(StateErrored))
	event.Error(s.sink, "session errored", event.Fields{
		"error":    err.Error(),
		"received": s.received.Load(),
	})
}

func asTransportError(err error) error {
	var te *gateway.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &gateway.TransportError{Op: "receive", Err: err}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Received returns how many data messages the session has dispatched.
func (s *Session) Received() uint64 {
	return s.received.Load()
}

// Err returns the terminal error of an ERRORED session, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// LastActivity returns when the session last decoded any frame, including
// keepalives.
func (s *Session) LastActivity() time.Time {
	n := s.lastAlive.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
