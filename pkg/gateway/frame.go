// ABOUTME: Binary codec for the gateway's protobuf wire format
// ABOUTME: Hand-decoded with protowire; no generated code

package gateway

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the gateway schema.
const (
	frameFieldKind    = 1
	frameFieldControl = 2
	frameFieldMessage = 3

	controlFieldType    = 1
	controlFieldMessage = 2

	msgFieldSubject   = 1
	msgFieldSequence  = 2
	msgFieldSizeBytes = 3
	msgFieldTimestamp = 4
	msgFieldConsumer  = 5
	msgFieldData      = 6

	tsFieldSeconds = 1
	tsFieldNanos   = 2

	pubFieldMessageID = 1
	pubFieldSubject   = 2
	pubFieldSource    = 3
	pubFieldTimestamp = 4
	pubFieldData      = 5
	pubFieldMetadata  = 6

	ackFieldPublished = 1
	ackFieldSubject   = 2
	ackFieldStream    = 3
	ackFieldSequence  = 4
	ackFieldTimestamp = 5

	mapFieldKey   = 1
	mapFieldValue = 2
)

// DecodeFrame decodes one binary frame. The returned frame always has
// exactly one populated variant matching its kind. Every other shape
// (truncated input, missing discriminator, unknown kind, variant/kind
// mismatch) is a DecodeError. Unknown fields are skipped for forward
// compatibility.
func DecodeFrame(raw []byte) (Frame, error) {
	var (
		f       Frame
		sawKind bool
	)
	fail := func(reason string) (Frame, error) {
		return Frame{}, &DecodeError{Reason: reason, DeclaredKind: f.Kind, RawLen: len(raw)}
	}

	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fail("malformed field tag")
		}
		b = b[n:]

		switch num {
		case frameFieldKind:
			if typ != protowire.VarintType {
				return fail("kind is not a varint")
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fail("truncated kind")
			}
			b = b[n:]
			f.Kind = FrameKind(v)
			sawKind = true

		case frameFieldControl:
			payload, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated control variant")
			}
			b = b[n:]
			ctl, err := decodeControl(payload)
			if err != nil {
				return fail(fmt.Sprintf("control variant: %v", err))
			}
			f.Control = &ctl

		case frameFieldMessage:
			payload, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated message variant")
			}
			b = b[n:]
			msg, err := decodeStreamMessage(payload)
			if err != nil {
				return fail(fmt.Sprintf("message variant: %v", err))
			}
			f.Message = &msg

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fail(fmt.Sprintf("malformed field %d", num))
			}
			b = b[n:]
		}
	}

	if !sawKind {
		return fail("missing kind discriminator")
	}
	switch f.Kind {
	case KindControl:
		if f.Control == nil {
			return fail("control frame without control variant")
		}
		if f.Message != nil {
			return fail("control frame carries a message variant")
		}
	case KindMessage:
		if f.Message == nil {
			return fail("message frame without message variant")
		}
		if f.Control != nil {
			return fail("message frame carries a control variant")
		}
	default:
		return fail(fmt.Sprintf("unrecognized kind %d", int32(f.Kind)))
	}
	return f, nil
}

// consumeMessage reads a length-delimited submessage.
func consumeMessage(typ protowire.Type, b []byte) ([]byte, int) {
	if typ != protowire.BytesType {
		return nil, -1
	}
	return protowire.ConsumeBytes(b)
}

func decodeControl(raw []byte) (Control, error) {
	var c Control
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Control{}, fmt.Errorf("malformed field tag")
		}
		b = b[n:]

		switch num {
		case controlFieldType:
			v, n := protowire.ConsumeVarint(b)
			if typ != protowire.VarintType || n < 0 {
				return Control{}, fmt.Errorf("truncated type")
			}
			b = b[n:]
			c.Type = ControlType(v)
		case controlFieldMessage:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return Control{}, fmt.Errorf("truncated message")
			}
			b = b[n:]
			c.Message = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Control{}, fmt.Errorf("malformed field %d", num)
			}
			b = b[n:]
		}
	}
	return c, nil
}

func decodeStreamMessage(raw []byte) (StreamMessage, error) {
	var m StreamMessage
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return StreamMessage{}, fmt.Errorf("malformed field tag")
		}
		b = b[n:]

		switch num {
		case msgFieldSubject:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return StreamMessage{}, fmt.Errorf("truncated subject")
			}
			b = b[n:]
			m.Subject = string(v)
		case msgFieldSequence:
			v, n := protowire.ConsumeVarint(b)
			if typ != protowire.VarintType || n < 0 {
				return StreamMessage{}, fmt.Errorf("truncated sequence")
			}
			b = b[n:]
			m.Sequence = v
		case msgFieldSizeBytes:
			v, n := protowire.ConsumeVarint(b)
			if typ != protowire.VarintType || n < 0 {
				return StreamMessage{}, fmt.Errorf("truncated size_bytes")
			}
			b = b[n:]
			m.SizeBytes = v
		case msgFieldTimestamp:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return StreamMessage{}, fmt.Errorf("truncated timestamp")
			}
			b = b[n:]
			ts, err := decodeTimestamp(v)
			if err != nil {
				return StreamMessage{}, fmt.Errorf("timestamp: %w", err)
			}
			m.Timestamp = &ts
		case msgFieldConsumer:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return StreamMessage{}, fmt.Errorf("truncated consumer")
			}
			b = b[n:]
			m.Consumer = string(v)
		case msgFieldData:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return StreamMessage{}, fmt.Errorf("truncated data")
			}
			b = b[n:]
			// size_bytes is advisory; len(v) is deliberately not checked
			// against it.
			m.Data = append([]byte(nil), v...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return StreamMessage{}, fmt.Errorf("malformed field %d", num)
			}
			b = b[n:]
		}
	}
	return m, nil
}

func decodeTimestamp(raw []byte) (Timestamp, error) {
	var ts Timestamp
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Timestamp{}, fmt.Errorf("malformed field tag")
		}
		b = b[n:]

		switch num {
		case tsFieldSeconds:
			v, n := protowire.ConsumeVarint(b)
			if typ != protowire.VarintType || n < 0 {
				return Timestamp{}, fmt.Errorf("truncated seconds")
			}
			b = b[n:]
			ts.Seconds = int64(v)
		case tsFieldNanos:
			v, n := protowire.ConsumeVarint(b)
			if typ != protowire.VarintType || n < 0 {
				return Timestamp{}, fmt.Errorf("truncated nanos")
			}
			b = b[n:]
			ts.Nanos = int32(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Timestamp{}, fmt.Errorf("malformed field %d", num)
			}
			b = b[n:]
		}
	}
	return ts, nil
}

// DecodePublishAck decodes the gateway's publish acknowledgement payload.
func DecodePublishAck(raw []byte) (PublishAck, error) {
	var a PublishAck
	fail := func(reason string) (PublishAck, error) {
		return PublishAck{}, &DecodeError{Reason: "publish ack: " + reason, RawLen: len(raw)}
	}

	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fail("malformed field tag")
		}
		b = b[n:]

		switch num {
		case ackFieldPublished:
			v, n := protowire.ConsumeVarint(b)
			if typ != protowire.VarintType || n < 0 {
				return fail("truncated published")
			}
			b = b[n:]
			a.Published = v != 0
		case ackFieldSubject:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated subject")
			}
			b = b[n:]
			a.Subject = string(v)
		case ackFieldStream:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated stream")
			}
			b = b[n:]
			a.Stream = string(v)
		case ackFieldSequence:
			v, n := protowire.ConsumeVarint(b)
			if typ != protowire.VarintType || n < 0 {
				return fail("truncated sequence")
			}
			b = b[n:]
			a.Sequence = v
		case ackFieldTimestamp:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated timestamp")
			}
			b = b[n:]
			ts, err := decodeTimestamp(v)
			if err != nil {
				return fail(fmt.Sprintf("timestamp: %v", err))
			}
			a.Timestamp = &ts
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fail(fmt.Sprintf("malformed field %d", num))
			}
			b = b[n:]
		}
	}
	return a, nil
}

// EncodeFrame encodes a frame without validating it, so tests can build
// deliberately inconsistent fixtures. For well-formed frames,
// DecodeFrame(EncodeFrame(f)) round-trips.
func EncodeFrame(f Frame) []byte {
	var b []byte
	if f.Kind != KindUnspecified {
		b = protowire.AppendTag(b, frameFieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Kind))
	}
	if f.Control != nil {
		b = protowire.AppendTag(b, frameFieldControl, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeControl(*f.Control))
	}
	if f.Message != nil {
		b = protowire.AppendTag(b, frameFieldMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeStreamMessage(*f.Message))
	}
	return b
}

func encodeControl(c Control) []byte {
	var b []byte
	if c.Type != ControlUnspecified {
		b = protowire.AppendTag(b, controlFieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.Type))
	}
	if c.Message != "" {
		b = protowire.AppendTag(b, controlFieldMessage, protowire.BytesType)
		b = protowire.AppendString(b, c.Message)
	}
	return b
}

func encodeStreamMessage(m StreamMessage) []byte {
	var b []byte
	if m.Subject != "" {
		b = protowire.AppendTag(b, msgFieldSubject, protowire.BytesType)
		b = protowire.AppendString(b, m.Subject)
	}
	if m.Sequence != 0 {
		b = protowire.AppendTag(b, msgFieldSequence, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Sequence)
	}
	if m.SizeBytes != 0 {
		b = protowire.AppendTag(b, msgFieldSizeBytes, protowire.VarintType)
		b = protowire.AppendVarint(b, m.SizeBytes)
	}
	if m.Timestamp != nil {
		b = protowire.AppendTag(b, msgFieldTimestamp, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTimestamp(*m.Timestamp))
	}
	if m.Consumer != "" {
		b = protowire.AppendTag(b, msgFieldConsumer, protowire.BytesType)
		b = protowire.AppendString(b, m.Consumer)
	}
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, msgFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return b
}

func encodeTimestamp(ts Timestamp) []byte {
	var b []byte
	if ts.Seconds != 0 {
		b = protowire.AppendTag(b, tsFieldSeconds, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ts.Seconds))
	}
	if ts.Nanos != 0 {
		b = protowire.AppendTag(b, tsFieldNanos, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(ts.Nanos)))
	}
	return b
}

// EncodePublishRequest encodes the publish envelope. Metadata entries are
// written in sorted key order so the output is deterministic.
func EncodePublishRequest(r PublishRequest) []byte {
	var b []byte
	if r.MessageID != "" {
		b = protowire.AppendTag(b, pubFieldMessageID, protowire.BytesType)
		b = protowire.AppendString(b, r.MessageID)
	}
	if r.Subject != "" {
		b = protowire.AppendTag(b, pubFieldSubject, protowire.BytesType)
		b = protowire.AppendString(b, r.Subject)
	}
	if r.Source != "" {
		b = protowire.AppendTag(b, pubFieldSource, protowire.BytesType)
		b = protowire.AppendString(b, r.Source)
	}
	if r.Timestamp != nil {
		b = protowire.AppendTag(b, pubFieldTimestamp, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTimestamp(*r.Timestamp))
	}
	if len(r.Data) > 0 {
		b = protowire.AppendTag(b, pubFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Data)
	}
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, mapFieldKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, mapFieldValue, protowire.BytesType)
		entry = protowire.AppendString(entry, r.Metadata[k])
		b = protowire.AppendTag(b, pubFieldMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// DecodePublishRequest decodes a publish envelope. The gateway does the real
// decoding server-side; this direction exists for tests and mock servers.
func DecodePublishRequest(raw []byte) (PublishRequest, error) {
	var r PublishRequest
	fail := func(reason string) (PublishRequest, error) {
		return PublishRequest{}, &DecodeError{Reason: "publish request: " + reason, RawLen: len(raw)}
	}

	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fail("malformed field tag")
		}
		b = b[n:]

		switch num {
		case pubFieldMessageID:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated message_id")
			}
			b = b[n:]
			r.MessageID = string(v)
		case pubFieldSubject:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated subject")
			}
			b = b[n:]
			r.Subject = string(v)
		case pubFieldSource:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated source")
			}
			b = b[n:]
			r.Source = string(v)
		case pubFieldTimestamp:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated timestamp")
			}
			b = b[n:]
			ts, err := decodeTimestamp(v)
			if err != nil {
				return fail(fmt.Sprintf("timestamp: %v", err))
			}
			r.Timestamp = &ts
		case pubFieldData:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated data")
			}
			b = b[n:]
			r.Data = append([]byte(nil), v...)
		case pubFieldMetadata:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return fail("truncated metadata entry")
			}
			b = b[n:]
			key, val, err := decodeMapEntry(v)
			if err != nil {
				return fail(fmt.Sprintf("metadata entry: %v", err))
			}
			if r.Metadata == nil {
				r.Metadata = make(map[string]string)
			}
			r.Metadata[key] = val
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fail(fmt.Sprintf("malformed field %d", num))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func decodeMapEntry(raw []byte) (string, string, error) {
	var key, val string
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("malformed field tag")
		}
		b = b[n:]

		switch num {
		case mapFieldKey:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("truncated key")
			}
			b = b[n:]
			key = string(v)
		case mapFieldValue:
			v, n := consumeMessage(typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("truncated value")
			}
			b = b[n:]
			val = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("malformed field %d", num)
			}
			b = b[n:]
		}
	}
	return key, val, nil
}

// EncodePublishAck encodes an acknowledgement. Used by tests and mock
// gateway servers; the client itself only decodes acks.
func EncodePublishAck(a PublishAck) []byte {
	var b []byte
	if a.Published {
		b = protowire.AppendTag(b, ackFieldPublished, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if a.Subject != "" {
		b = protowire.AppendTag(b, ackFieldSubject, protowire.BytesType)
		b = protowire.AppendString(b, a.Subject)
	}
	if a.Stream != "" {
		b = protowire.AppendTag(b, ackFieldStream, protowire.BytesType)
		b = protowire.AppendString(b, a.Stream)
	}
	if a.Sequence != 0 {
		b = protowire.AppendTag(b, ackFieldSequence, protowire.VarintType)
		b = protowire.AppendVarint(b, a.Sequence)
	}
	if a.Timestamp != nil {
		b = protowire.AppendTag(b, ackFieldTimestamp, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTimestamp(*a.Timestamp))
	}
	return b
}
