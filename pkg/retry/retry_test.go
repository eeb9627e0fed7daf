package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/svcmodel/svcmodel-go/internal/echotest"
	"github.com/svcmodel/svcmodel-go/pkg/binding"
	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/retry"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

func TestBackoff(t *testing.T) {
	t.Run("Sequence", func(t *testing.T) {
		b := retry.NewBackoff(retry.BackoffConfig{Initial: time.Second, Max: 8 * time.Second, Jitter: -1})
		expected := []time.Duration{1, 2, 4, 8, 8}
		for i, exp := range expected {
			if got := b.Next(); got != exp*time.Second {
				t.Errorf("attempt %d: delay = %v, want %v", i, got, exp*time.Second)
			}
		}
		if b.Attempts() != len(expected) {
			t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := retry.NewBackoff(retry.BackoffConfig{Initial: time.Second, Jitter: 0.25})
		for i := 0; i < 20; i++ {
			b.Reset()
			if d := b.Next(); d < time.Second || d > 1250*time.Millisecond {
				t.Fatalf("sample %d: %v out of range [1s, 1.25s]", i, d)
			}
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		b := retry.NewBackoff(retry.BackoffConfig{})
		if b.Current() != retry.InitialBackoff {
			t.Errorf("Current() = %v, want %v", b.Current(), retry.InitialBackoff)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := retry.NewBackoff(retry.BackoffConfig{Initial: time.Millisecond})
		b.Next()
		b.Next()
		b.Reset()
		if b.Current() != time.Millisecond || b.Attempts() != 0 {
			t.Errorf("after Reset: current = %v, attempts = %d", b.Current(), b.Attempts())
		}
	})
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fault.New(fault.KindCommunication, "op", "reset"), true},
		{fault.New(fault.KindTimedOut, "op", "late"), true},
		{fault.New(fault.KindSecurityValidation, "op", "denied"), false},
		{fault.New(fault.KindConfiguration, "op", "bad"), false},
		{&fault.RemoteFault{Code: fault.CodeActionNotSupported}, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := retry.Transient(tt.err); got != tt.want {
			t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func newFactory(t *testing.T) *channel.Factory {
	t.Helper()
	b, err := binding.NetTCPBinding(security.Settings{})
	if err != nil {
		t.Fatalf("NetTCPBinding() error = %v", err)
	}
	f, err := b.BuildChannelFactory(channel.ShapeRequest, binding.Parameters{Pool: transport.NewPool(transport.PoolConfig{})})
	if err != nil {
		t.Fatalf("BuildChannelFactory() error = %v", err)
	}
	t.Cleanup(f.Abort)
	return f
}

func request(action string, out **message.Message) func(context.Context, *channel.Channel) error {
	return func(ctx context.Context, ch *channel.Channel) error {
		reply, err := ch.Request(ctx, message.NewString(message.Soap12WSAddressing10, action, "ping"), 200*time.Millisecond)
		*out = reply
		return err
	}
}

func TestDoRetriesTimeout(t *testing.T) {
	var calls atomic.Int32
	svc := servicehost.NewService()
	svc.Handle("urn:test/Flaky", func(ctx context.Context, req *message.Message) (*message.Message, error) {
		if calls.Add(1) == 1 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		return servicehost.EchoOperation(ctx, req)
	})
	env := echotest.Start(t, echotest.WithService(svc))
	f := newFactory(t)

	var reply *message.Message
	policy := retry.Policy{MaxAttempts: 3, Backoff: retry.BackoffConfig{Initial: 10 * time.Millisecond}}
	err := retry.Do(context.Background(), f, env.Address(t, transport.SchemeTCP, servicehost.PathEcho), policy, request("urn:test/Flaky", &reply))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if f.State() != channel.StateOpened {
		t.Errorf("factory state = %v, want Opened", f.State())
	}
	text, err := reply.ReadBodyString()
	if err != nil || text != "ping"+servicehost.ReplySuffix {
		t.Errorf("reply = %q, %v", text, err)
	}
}

func TestDoStopsOnRemoteFault(t *testing.T) {
	env := echotest.Start(t)
	f := newFactory(t)

	var reply *message.Message
	attempts := 0
	err := retry.Do(context.Background(), f, env.Address(t, transport.SchemeTCP, servicehost.PathEcho), retry.DefaultPolicy(),
		func(ctx context.Context, ch *channel.Channel) error {
			attempts++
			return request("urn:test/Unknown", &reply)(ctx, ch)
		})
	if !errors.Is(err, fault.ErrRemoteFault) {
		t.Fatalf("Do() error = %v, want remote fault", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDoExhausted(t *testing.T) {
	env := echotest.Start(t)
	f := newFactory(t)
	addr := env.Address(t, transport.SchemeTCP, servicehost.PathEcho)

	attempts := 0
	policy := retry.Policy{MaxAttempts: 3, Backoff: retry.BackoffConfig{Initial: time.Millisecond}}
	err := retry.Do(context.Background(), f, addr, policy, func(context.Context, *channel.Channel) error {
		attempts++
		return fault.New(fault.KindCommunication, "test", "connection reset")
	})
	if !errors.Is(err, retry.ErrExhausted) || !errors.Is(err, fault.ErrCommunication) {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoContextCancelled(t *testing.T) {
	env := echotest.Start(t)
	f := newFactory(t)
	ctx, cancel := context.WithCancel(context.Background())

	policy := retry.Policy{MaxAttempts: 5, Backoff: retry.BackoffConfig{Initial: time.Hour}}
	err := retry.Do(ctx, f, env.Address(t, transport.SchemeTCP, servicehost.PathEcho), policy, func(context.Context, *channel.Channel) error {
		cancel()
		return fault.New(fault.KindTimedOut, "test", "late")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
}
