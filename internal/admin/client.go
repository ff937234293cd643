// ABOUTME: JSON client for the gateway's consumer lifecycle API
// ABOUTME: Templates, stream info, create/list/get/health/reset/delete

// Package admin talks to the gateway's administrative JSON endpoints for
// durable consumer lifecycle. The streaming core never calls this; it exists
// so a caller hitting "consumer not found" can create or repair the
// consumer and open a fresh session.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/gateway"
)

// Client calls the gateway admin API.
type Client struct {
	base string
	http *http.Client
	sink event.Sink
}

// NewClient builds an admin client for the gateway base URL. Nil arguments
// fall back to http.DefaultClient and a no-op sink.
func NewClient(baseURL string, httpClient *http.Client, sink event.Sink) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if sink == nil {
		sink = event.Nop()
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient, sink: sink}
}

// ConsumerSpec is the create-consumer request body.
type ConsumerSpec struct {
	Name          string `json:"name"`
	Durable       bool   `json:"durable"`
	FilterSubject string `json:"filterSubject"`
	DeliverPolicy string `json:"deliverPolicy,omitempty"`
	AckPolicy     string `json:"ackPolicy,omitempty"`
	MaxDeliver    int    `json:"maxDeliver,omitempty"`
	AckWait       string `json:"ackWait,omitempty"`
}

// ConsumerInfo describes one consumer as reported by the gateway.
type ConsumerInfo struct {
	Name          string    `json:"name"`
	Stream        string    `json:"stream"`
	FilterSubject string    `json:"filterSubject"`
	Durable       bool      `json:"durable"`
	NumPending    uint64    `json:"numPending"`
	NumAckPending uint64    `json:"numAckPending"`
	Delivered     uint64    `json:"delivered"`
	Created       time.Time `json:"created"`
}

// ConsumerHealth is the consumer health report.
type ConsumerHealth struct {
	Status       string     `json:"status"`
	Pending      uint64     `json:"pendingMessages"`
	LastDelivery *time.Time `json:"lastDelivery,omitempty"`
	Notes        []string   `json:"notes,omitempty"`
}

// StreamInfo describes a stream.
type StreamInfo struct {
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
	Messages uint64   `json:"messages"`
	Bytes    uint64   `json:"bytes"`
}

// Template is a server-side consumer configuration template.
type Template struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Spec        ConsumerSpec `json:"spec"`
}

// Templates lists the gateway's consumer templates.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var out []Template
	err := c.do(ctx, http.MethodGet, "/api/consumers/templates", nil, &out)
	return out, err
}

// Stream fetches stream details.
func (c *Client) Stream(ctx context.Context, stream string) (StreamInfo, error) {
	var out StreamInfo
	err := c.do(ctx, http.MethodGet, "/api/streams/"+stream, nil, &out)
	return out, err
}

// Create creates a consumer on the stream.
func (c *Client) Create(ctx context.Context, stream string, spec ConsumerSpec) (ConsumerInfo, error) {
	var out ConsumerInfo
	err := c.do(ctx, http.MethodPost, "/api/consumers/"+stream, spec, &out)
	if err == nil {
		event.Info(c.sink, "consumer created", event.Fields{
			"stream":   stream,
			"consumer": spec.Name,
		})
	}
	return out, err
}

// List lists the stream's consumers.
func (c *Client) List(ctx context.Context, stream string) ([]ConsumerInfo, error) {
	var out []ConsumerInfo
	err := c.do(ctx, http.MethodGet, "/api/consumers/"+stream, nil, &out)
	return out, err
}

// Get fetches one consumer. A missing consumer is a ConfigurationError.
func (c *Client) Get(ctx context.Context, stream, name string) (ConsumerInfo, error) {
	var out ConsumerInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/consumers/%s/%s", stream, name), nil, &out)
	return out, err
}

// Health fetches the consumer's health report.
func (c *Client) Health(ctx context.Context, stream, name string) (ConsumerHealth, error) {
	var out ConsumerHealth
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/consumers/%s/%s/health", stream, name), nil, &out)
	return out, err
}

// Reset rewinds the consumer's cursor.
func (c *Client) Reset(ctx context.Context, stream, name string) error {
	body := map[string]string{"action": "reset"}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/consumers/%s/%s/reset", stream, name), body, nil)
}

// Delete removes the consumer.
func (c *Client) Delete(ctx context.Context, stream, name string) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/consumers/%s/%s", stream, name), nil, nil)
	if err == nil {
		event.Info(c.sink, "consumer deleted", event.Fields{
			"stream":   stream,
			"consumer": name,
		})
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return &gateway.TransportError{Op: "build admin request", Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &gateway.TransportError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &gateway.TransportError{Op: "read admin response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &gateway.ConfigurationError{Reason: fmt.Sprintf("%s %s: not found", method, path)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &gateway.TransportError{Op: method + " " + path, Err: fmt.Errorf("gateway returned %s", resp.Status)}
	case resp.StatusCode >= http.StatusBadRequest:
		return &gateway.ProtocolError{Message: fmt.Sprintf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &gateway.ProtocolError{Message: fmt.Sprintf("%s %s: undecodable response: %v", method, path, err)}
		}
	}
	return nil
}
