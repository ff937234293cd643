// ABOUTME: Gateway wire protocol type definitions
// ABOUTME: Frames, control messages, stream messages, and publish envelopes

package gateway

import "time"

// FrameKind discriminates the two frame variants. Zero is reserved so a
// frame that never set its discriminator can be told apart from a control
// frame on the wire.
type FrameKind int32

const (
	KindUnspecified FrameKind = 0
	KindControl     FrameKind = 1
	KindMessage     FrameKind = 2
)

// String returns the protocol name of the kind.
func (k FrameKind) String() string {
	switch k {
	case KindControl:
		return "CONTROL"
	case KindMessage:
		return "MESSAGE"
	default:
		return "UNSPECIFIED"
	}
}

// ControlType identifies a control frame's purpose.
type ControlType int32

const (
	ControlUnspecified  ControlType = 0
	ControlError        ControlType = 1
	ControlSubscribeAck ControlType = 2
	ControlClose        ControlType = 3
	ControlKeepalive    ControlType = 4
)

// String returns the protocol name of the control type.
func (t ControlType) String() string {
	switch t {
	case ControlError:
		return "ERROR"
	case ControlSubscribeAck:
		return "SUBSCRIBE_ACK"
	case ControlClose:
		return "CLOSE"
	case ControlKeepalive:
		return "KEEPALIVE"
	default:
		return "UNSPECIFIED"
	}
}

// Frame is one binary unit received from the streaming endpoint. Exactly one
// of Control or Message is populated, matching Kind; DecodeFrame enforces
// this.
type Frame struct {
	Kind    FrameKind
	Control *Control
	Message *StreamMessage
}

// Control is a server-originated control message. Clients never send
// control frames; they are constructed locally only in tests.
type Control struct {
	Type    ControlType
	Message string
}

// Timestamp is a wall-clock instant in seconds and nanoseconds since the
// Unix epoch, mirroring the gateway's wire representation.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// NewTimestamp builds a wire timestamp from a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// StreamMessage is one event delivered off a subscription.
//
// SizeBytes is the sender's declared payload length. It is advisory and may
// disagree with len(Data); the codec never validates it. Sequence values are
// unsigned and non-decreasing per consumer, but gaps are normal under
// at-least-once delivery.
type StreamMessage struct {
	Subject   string
	Sequence  uint64
	SizeBytes uint64
	Timestamp *Timestamp // optional
	Consumer  string     // set only for durable subscriptions
	Data      []byte
}

// PublishRequest is the envelope sent to the gateway's publish endpoint.
type PublishRequest struct {
	MessageID string
	Subject   string
	Source    string
	Timestamp *Timestamp // optional
	Data      []byte
	Metadata  map[string]string
}

// PublishAck is the gateway's response to a publish. Sequence is only
// meaningful when Published is true. Published=false is an application-level
// rejection, not a transport or protocol failure.
type PublishAck struct {
	Published bool
	Subject   string
	Stream    string
	Sequence  uint64
	Timestamp *Timestamp // optional
}
