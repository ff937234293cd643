// ABOUTME: Bounded retry/backoff policy shared by publish and subscribe
// ABOUTME: Retries transport failures only; rejections surface immediately

// Package reconnect wraps transport operations in a bounded retry loop.
// Both the publish and the subscribe paths use the same policy, so retry
// behavior is configured (and tested) in exactly one place.
package reconnect

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/gateway"
)

// Policy describes how an operation is retried. Only transport-class
// failures are retried: a rejected subscription or a malformed payload will
// not be fixed by trying again, so those surface immediately. When the
// policy gives up it returns the last underlying failure, never a generic
// one.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Zero means a single attempt.
	MaxAttempts uint
	// BaseDelay is the wait between attempts.
	BaseDelay time.Duration
	// Exponential doubles the delay after each failed attempt; otherwise
	// the delay is fixed.
	Exponential bool
	// Sink receives a warn event before each retry sleep. Nil discards.
	Sink event.Sink
}

// Do runs op under the policy. Cancellation of ctx stops the retry loop
// between attempts.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	sink := p.Sink
	if sink == nil {
		sink = event.Nop()
	}
	delayType := retry.DelayTypeFunc(retry.FixedDelay)
	if p.Exponential {
		delayType = retry.BackOffDelay
	}

	return retry.Do(
		op,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.BaseDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
		retry.RetryIf(gateway.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			event.Warn(sink, "retrying after transport failure", event.Fields{
				"operation": name,
				"attempt":   n + 1,
				"error":     err.Error(),
			})
		}),
	)
}
