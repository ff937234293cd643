// ABOUTME: Subscription configuration and target addressing
// ABOUTME: Ephemeral subject-filter mode and durable stream+consumer mode

package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/natsgate/natsgate-go/pkg/gateway"
)

// Mode selects how a subscription is addressed.
type Mode int

const (
	// ModeEphemeral subscribes by subject filter; the server-side consumer
	// disappears when the session closes.
	ModeEphemeral Mode = iota
	// ModeDurable subscribes to a named, server-persisted consumer cursor.
	ModeDurable
)

func (m Mode) String() string {
	if m == ModeDurable {
		return "durable"
	}
	return "ephemeral"
}

// Config describes one subscription. It is immutable for the session's
// lifetime; a session is opened once and never reused.
type Config struct {
	Mode          Mode
	SubjectFilter string // ephemeral mode
	StreamName    string // durable mode
	ConsumerName  string // durable mode

	// ReceiveTimeout bounds each wait for the next frame. Zero blocks
	// indefinitely.
	ReceiveTimeout time.Duration

	// MaxMessages caps the run; reaching it (or timing out while capped)
	// drains the session. Zero streams unbounded.
	MaxMessages int
}

// Ephemeral returns a config subscribing by subject filter, e.g. "events.>".
func Ephemeral(subjectFilter string) Config {
	return Config{Mode: ModeEphemeral, SubjectFilter: subjectFilter}
}

// Durable returns a config subscribing to an existing durable consumer.
func Durable(streamName, consumerName string) Config {
	return Config{Mode: ModeDurable, StreamName: streamName, ConsumerName: consumerName}
}

// Target is the subscription address handed to a Dialer.
type Target struct {
	Mode          Mode
	SubjectFilter string
	StreamName    string
	ConsumerName  string
}

func (c Config) target() Target {
	return Target{
		Mode:          c.Mode,
		SubjectFilter: c.SubjectFilter,
		StreamName:    c.StreamName,
		ConsumerName:  c.ConsumerName,
	}
}

// validate rejects unusable subscription addresses before any network I/O.
func (c Config) validate() error {
	switch c.Mode {
	case ModeEphemeral:
		return validateSubjectFilter(c.SubjectFilter)
	case ModeDurable:
		if c.StreamName == "" || c.ConsumerName == "" {
			return &gateway.ConfigurationError{Reason: "durable subscription requires stream and consumer names"}
		}
		return nil
	default:
		return &gateway.ConfigurationError{Reason: fmt.Sprintf("unknown subscription mode %d", c.Mode)}
	}
}

// validateSubjectFilter checks NATS subject-filter syntax: dot-separated
// tokens, "*" matching one token, ">" matching the rest (last token only).
func validateSubjectFilter(filter string) error {
	if filter == "" {
		return &gateway.ConfigurationError{Reason: "empty subject filter"}
	}
	tokens := strings.Split(filter, ".")
	for i, tok := range tokens {
		if tok == "" {
			return &gateway.ConfigurationError{Reason: fmt.Sprintf("subject filter %q has an empty token", filter)}
		}
		if tok == ">" && i != len(tokens)-1 {
			return &gateway.ConfigurationError{Reason: fmt.Sprintf("subject filter %q uses > before the last token", filter)}
		}
		if strings.ContainsAny(tok, " \t") {
			return &gateway.ConfigurationError{Reason: fmt.Sprintf("subject filter %q contains whitespace", filter)}
		}
	}
	return nil
}
