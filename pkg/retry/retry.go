package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// ErrExhausted is joined to the last attempt's error when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy controls how often and when work is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	Backoff BackoffConfig

	// Retryable decides whether an error is worth another attempt.
	// Nil uses Transient.
	Retryable func(error) bool

	Logger *slog.Logger
}

// DefaultPolicy returns three attempts with the default backoff.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3}
}

// Transient reports whether err is a communication failure or a timeout.
// Configuration, security and remote faults are never transient: the same
// request would fail the same way.
func Transient(err error) bool {
	return errors.Is(err, fault.ErrCommunication) || errors.Is(err, fault.ErrTimedOut)
}

// Do runs fn on a freshly opened channel from factory, retrying on
// transient failures. The factory is opened if it is still Created and is
// left open; each attempt's channel is closed before the next starts.
// Do stops early when the factory leaves the Opened state.
func Do(ctx context.Context, factory *channel.Factory, addr *endpoint.Address, p Policy, fn func(context.Context, *channel.Channel) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}
	backoff := NewBackoff(p.Backoff)

	if factory.State() == channel.StateCreated {
		if err := factory.Open(ctx); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := backoff.Next()
			if p.Logger != nil {
				p.Logger.Debug("retrying request",
					"attempt", attempt, "delay", delay, "error", lastErr)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = attemptOnce(ctx, factory, addr, fn)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || factory.State() != channel.StateOpened {
			return lastErr
		}
	}
	return errors.Join(lastErr, ErrExhausted)
}

func attemptOnce(ctx context.Context, factory *channel.Factory, addr *endpoint.Address, fn func(context.Context, *channel.Channel) error) error {
	ch, err := factory.CreateChannel(addr)
	if err != nil {
		return err
	}
	if err := ch.Open(ctx); err != nil {
		ch.Abort()
		return err
	}
	if err := fn(ctx, ch); err != nil {
		// A faulted channel is aborted by Close; its error adds nothing.
		_ = channel.CloseCommunicationObjects(ctx, ch)
		return err
	}
	return channel.CloseCommunicationObjects(ctx, ch)
}
