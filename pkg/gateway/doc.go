// ABOUTME: Package documentation for the gateway wire protocol
// ABOUTME: Defines frame types, the binary codec, and the error taxonomy

// Package gateway defines the wire-level types exchanged with a NATS
// HTTP/WebSocket gateway and the codec for its binary frame format.
//
// The streaming side of the gateway delivers protobuf-encoded frames over
// WebSocket: each frame is either a control message (subscription
// acknowledgement, keepalive, close, error) or a stream message carrying an
// event from the broker. The publish side accepts a protobuf publish
// envelope over HTTP and answers with a publish acknowledgement.
//
// The codec in this package works directly on the protobuf wire format via
// protowire; there is no generated code. Decoding is strict about the frame
// discriminator: a frame missing its kind, carrying an unknown kind, or
// carrying a variant that disagrees with its kind is rejected with a
// DecodeError.
package gateway
