// ABOUTME: Error taxonomy for the gateway client
// ABOUTME: Decode, protocol, transport, timeout, and configuration errors

package gateway

import (
	"errors"
	"fmt"
	"time"
)

// DecodeError reports a malformed frame or ack payload. It is fatal to the
// read that produced it, not to the session. DeclaredKind and RawLen carry
// the context needed to debug the offending bytes.
type DecodeError struct {
	Reason       string
	DeclaredKind FrameKind
	RawLen       int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s (declared kind %s, %d bytes)", e.Reason, e.DeclaredKind, e.RawLen)
}

// ProtocolError reports a well-formed server-side rejection, such as an
// ERROR control frame or a 4xx publish response. The message is surfaced
// verbatim. Protocol errors are fatal to the session and never retried.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Message)
}

// TransportError reports a connection-level failure: a failed dial, a broken
// pipe mid-read, a 5xx response. Transport errors are retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports an expired bounded wait. It is a normal outcome of a
// deadline-bounded receive, distinguishable from cancellation and from a
// broken connection; the caller decides whether to keep waiting.
type TimeoutError struct {
	Op   string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s after %s", e.Op, e.Wait)
}

// Timeout marks the error as a timeout for net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// ConfigurationError reports a subscription target the gateway cannot serve:
// a durable consumer that does not exist, an invalid subject filter. It
// requires caller intervention and is never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s", e.Reason)
}

// IsRetryable reports whether retrying the failed operation could succeed.
// Only transport-class failures qualify; protocol rejections, malformed
// payloads, timeouts, and configuration problems will not be fixed by a
// retry.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is an expired bounded wait.
func IsTimeout(err error) bool {
	var to *TimeoutError
	return errors.As(err, &to)
}

// IsConfiguration reports whether err is a subscription-target problem the
// caller must fix (for example by creating the missing durable consumer).
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
