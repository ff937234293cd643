// ABOUTME: HTTP request/response transport for the publish+ack path
// ABOUTME: Maps response classes onto the client error taxonomy

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/natsgate/natsgate-go/pkg/gateway"
)

// HTTPPublisher posts protobuf publish envelopes to
// {base}/api/proto/protobufmessages/{subject} and returns the raw ack
// payload. It implements publish.RequestTransport.
type HTTPPublisher struct {
	base   string
	client *http.Client
}

// NewHTTPPublisher builds a publisher against the gateway base URL. A nil
// client uses http.DefaultClient; deadlines come from the request context.
func NewHTTPPublisher(baseURL string, client *http.Client) *HTTPPublisher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPublisher{base: strings.TrimRight(baseURL, "/"), client: client}
}

// RoundTrip sends one encoded envelope. Network failures and 5xx responses
// are TransportError (retryable); 4xx responses are ProtocolError carrying
// the gateway's response body verbatim.
func (p *HTTPPublisher) RoundTrip(ctx context.Context, subject string, payload []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/proto/protobufmessages/%s", p.base, subject)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &gateway.TransportError{Op: "build publish request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &gateway.TransportError{Op: "publish " + subject, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &gateway.TransportError{Op: "read publish response", Err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &gateway.TransportError{
			Op:  "publish " + subject,
			Err: fmt.Errorf("gateway returned %s", resp.Status),
		}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &gateway.ProtocolError{
			Message: fmt.Sprintf("publish rejected (%s): %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}
