// ABOUTME: Tests for the frame and envelope codec
// ABOUTME: Round-trips, malformed inputs, forward-compatibility skipping

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeFrameMessageRoundTrip(t *testing.T) {
	ts := Timestamp{Seconds: 1700000000, Nanos: 123456789}
	in := Frame{
		Kind: KindMessage,
		Message: &StreamMessage{
			Subject:   "events.test",
			Sequence:  42,
			SizeBytes: 11,
			Timestamp: &ts,
			Consumer:  "worker-1",
			Data:      []byte("hello world"),
		},
	}

	out, err := DecodeFrame(EncodeFrame(in))
	require.NoError(t, err)
	require.NotNil(t, out.Message)
	assert.Nil(t, out.Control)
	assert.Equal(t, KindMessage, out.Kind)
	assert.Equal(t, *in.Message, *out.Message)
}

func TestDecodeFrameControlRoundTrip(t *testing.T) {
	in := Frame{
		Kind:    KindControl,
		Control: &Control{Type: ControlSubscribeAck, Message: "subscribed to events.>"},
	}

	out, err := DecodeFrame(EncodeFrame(in))
	require.NoError(t, err)
	require.NotNil(t, out.Control)
	assert.Nil(t, out.Message)
	assert.Equal(t, ControlSubscribeAck, out.Control.Type)
	assert.Equal(t, "subscribed to events.>", out.Control.Message)
}

func TestDecodeFrameMissingKind(t *testing.T) {
	raw := EncodeFrame(Frame{Control: &Control{Type: ControlKeepalive}})

	_, err := DecodeFrame(raw)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "missing kind")
	assert.Equal(t, len(raw), derr.RawLen)
}

func TestDecodeFrameUnknownKind(t *testing.T) {
	var raw []byte
	raw = protowire.AppendTag(raw, frameFieldKind, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 99)

	_, err := DecodeFrame(raw)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, FrameKind(99), derr.DeclaredKind)
}

func TestDecodeFrameKindVariantMismatch(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"control kind with message variant", Frame{Kind: KindControl, Message: &StreamMessage{Subject: "x"}}},
		{"message kind with control variant", Frame{Kind: KindMessage, Control: &Control{Type: ControlClose}}},
		{"control kind with both variants", Frame{Kind: KindControl, Control: &Control{Type: ControlClose}, Message: &StreamMessage{Subject: "x"}}},
		{"control kind with no variant", Frame{Kind: KindControl}},
		{"message kind with no variant", Frame{Kind: KindMessage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(EncodeFrame(tt.frame))
			var derr *DecodeError
			assert.ErrorAs(t, err, &derr)
		})
	}
}

func TestDecodeFrameTruncated(t *testing.T) {
	raw := EncodeFrame(Frame{
		Kind:    KindMessage,
		Message: &StreamMessage{Subject: "events.test", Data: []byte("payload")},
	})

	_, err := DecodeFrame(raw[:len(raw)-3])
	var derr *DecodeError
	assert.ErrorAs(t, err, &derr)
}

func TestDecodeFrameSizeMismatchAllowed(t *testing.T) {
	// size_bytes is advisory; a lying sender still decodes.
	raw := EncodeFrame(Frame{
		Kind:    KindMessage,
		Message: &StreamMessage{Subject: "s", SizeBytes: 9999, Data: []byte("tiny")},
	})

	out, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(9999), out.Message.SizeBytes)
	assert.Equal(t, []byte("tiny"), out.Message.Data)
}

func TestDecodeFrameSkipsUnknownFields(t *testing.T) {
	raw := EncodeFrame(Frame{
		Kind:    KindControl,
		Control: &Control{Type: ControlKeepalive},
	})
	// A future field the current schema does not know about.
	raw = protowire.AppendTag(raw, 15, protowire.BytesType)
	raw = protowire.AppendString(raw, "from-the-future")

	out, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, ControlKeepalive, out.Control.Type)
}

func TestDecodeFrameEmptyInput(t *testing.T) {
	_, err := DecodeFrame(nil)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "missing kind")
}

func TestDecodeFrameGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	var derr *DecodeError
	assert.ErrorAs(t, err, &derr)
}

func TestPublishRequestRoundTrip(t *testing.T) {
	ts := Timestamp{Seconds: 1700000000}
	in := PublishRequest{
		MessageID: "0c7a6f2e-8a21-4c55-9b7e-7e3a9f1d0b40",
		Subject:   "events.orders",
		Source:    "host-a",
		Timestamp: &ts,
		Data:      []byte(`{"event_type":"order.created"}`),
		Metadata:  map[string]string{"client": "natsgate-go", "sequence": "7"},
	}

	out, err := DecodePublishRequest(EncodePublishRequest(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodePublishRequestDeterministicMetadata(t *testing.T) {
	req := PublishRequest{
		MessageID: "id",
		Subject:   "s",
		Metadata:  map[string]string{"zeta": "1", "alpha": "2", "mu": "3"},
	}
	first := EncodePublishRequest(req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, EncodePublishRequest(req))
	}
}

func TestPublishAckRoundTrip(t *testing.T) {
	ts := Timestamp{Seconds: 1700000001, Nanos: 500}
	in := PublishAck{
		Published: true,
		Subject:   "events.orders",
		Stream:    "EVENTS",
		Sequence:  1207,
		Timestamp: &ts,
	}

	out, err := DecodePublishAck(EncodePublishAck(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodePublishAckRejected(t *testing.T) {
	// Published=false encodes as an absent field; decoding yields the
	// zero value, a valid rejection ack.
	out, err := DecodePublishAck(EncodePublishAck(PublishAck{Subject: "events.orders"}))
	require.NoError(t, err)
	assert.False(t, out.Published)
	assert.Equal(t, "events.orders", out.Subject)
}

func TestDecodePublishAckGarbage(t *testing.T) {
	_, err := DecodePublishAck([]byte{0x0a}) // length-delimited tag, no payload
	var derr *DecodeError
	assert.ErrorAs(t, err, &derr)
}

func TestTimestampConversion(t *testing.T) {
	ts := Timestamp{Seconds: 1700000000, Nanos: 250000000}
	got := ts.Time()
	assert.Equal(t, int64(1700000000), got.Unix())
	assert.Equal(t, 250000000, got.Nanosecond())

	back := NewTimestamp(got)
	assert.Equal(t, ts, back)
}

func TestFrameKindStrings(t *testing.T) {
	assert.Equal(t, "CONTROL", KindControl.String())
	assert.Equal(t, "MESSAGE", KindMessage.String())
	assert.Equal(t, "UNSPECIFIED", KindUnspecified.String())
	assert.Equal(t, "ERROR", ControlError.String())
	assert.Equal(t, "SUBSCRIBE_ACK", ControlSubscribeAck.String())
	assert.Equal(t, "CLOSE", ControlClose.String())
	assert.Equal(t, "KEEPALIVE", ControlKeepalive.String())
}
