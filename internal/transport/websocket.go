// ABOUTME: WebSocket implementation of the stream Dialer and Transport
// ABOUTME: Deadline-bounded receives and best-effort close handshake

// Package transport provides the concrete gateway transports: a
// gorilla/websocket dialer for the streaming endpoints and an HTTP
// round-tripper for the protobuf publish endpoint.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/natsgate/natsgate-go/pkg/gateway"
	"github.com/natsgate/natsgate-go/pkg/stream"
)

// WebSocketDialer dials the gateway's streaming endpoints:
//
//	ephemeral: {base}/ws/websocketmessages/{subjectFilter}
//	durable:   {base}/ws/websocketmessages/{stream}/consumer/{consumer}
type WebSocketDialer struct {
	// BaseURL is the gateway's HTTP base URL; the scheme is rewritten to
	// ws/wss for dialing.
	BaseURL string
	// Dialer overrides websocket.DefaultDialer when set.
	Dialer *websocket.Dialer
}

// Dial opens the subscription's WebSocket. A durable target rejected with
// HTTP 404 during the handshake means the consumer does not exist
// server-side; that is a ConfigurationError, not a transport failure, so
// the caller can decide to create the consumer instead of retrying.
func (d *WebSocketDialer) Dial(ctx context.Context, target stream.Target) (stream.Transport, error) {
	endpoint, err := d.streamURL(target)
	if err != nil {
		return nil, err
	}

	wsd := d.Dialer
	if wsd == nil {
		wsd = websocket.DefaultDialer
	}

	conn, resp, err := wsd.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound && target.Mode == stream.ModeDurable {
			return nil, &gateway.ConfigurationError{
				Reason: fmt.Sprintf("durable consumer %q not found in stream %q", target.ConsumerName, target.StreamName),
			}
		}
		return nil, &gateway.TransportError{Op: "dial " + endpoint, Err: err}
	}
	return newWSTransport(conn), nil
}

func (d *WebSocketDialer) streamURL(target stream.Target) (string, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", &gateway.ConfigurationError{Reason: fmt.Sprintf("invalid base URL %q: %v", d.BaseURL, err)}
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", &gateway.ConfigurationError{Reason: fmt.Sprintf("unsupported base URL scheme %q", u.Scheme)}
	}

	base := strings.TrimRight(u.Path, "/")
	if target.Mode == stream.ModeDurable {
		u.Path = fmt.Sprintf("%s/ws/websocketmessages/%s/consumer/%s", base, target.StreamName, target.ConsumerName)
	} else {
		u.Path = fmt.Sprintf("%s/ws/websocketmessages/%s", base, target.SubjectFilter)
	}
	return u.String(), nil
}

// wsTransport owns one WebSocket connection for one session.
type wsTransport struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// Receive blocks up to timeout for the next binary frame. Text frames are
// skipped; the gateway only speaks binary on this endpoint.
func (t *wsTransport) Receive(timeout time.Duration) ([]byte, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, &gateway.TransportError{Op: "set read deadline", Err: err}
	}

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, &gateway.TimeoutError{Op: "receive frame", Wait: timeout}
			}
			return nil, &gateway.TransportError{Op: "receive frame", Err: err}
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

// Close sends a close frame within grace and tears the connection down.
// Idempotent, and unblocks a concurrent Receive.
func (t *wsTransport) Close(grace time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(grace))
	return t.conn.Close()
}
