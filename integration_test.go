package svcmodel_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/svcmodel/svcmodel-go/internal/echotest"
	"github.com/svcmodel/svcmodel-go/pkg/binding"
	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/config"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/retry"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

const clientText = "[client] This is my request."

// TestE2E_Discovery resolves a net.tcp resource advertised over mDNS and
// sends a request through it.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	instance := "e2e-" + uuid.NewString()[:8]
	advertiser := resolve.NewMDNSAdvertiser(resolve.AdvertiserConfig{Instance: instance})
	defer advertiser.StopAll()

	env := echotest.Start(t, echotest.WithConfig(func(c *servicehost.Config) { c.Advertiser = advertiser }))

	base, err := env.Host.BaseAddress(transport.SchemeTCP)
	if err != nil {
		t.Fatalf("BaseAddress() error = %v", err)
	}
	port, _ := strconv.Atoi(base.URI().Port())

	b, err := binding.NetTCPBinding(security.Settings{})
	if err != nil {
		t.Fatalf("NetTCPBinding() error = %v", err)
	}
	resolver := resolve.NewMDNS(resolve.MDNSConfig{Instance: instance, BrowseTimeout: 3 * time.Second})
	req := resolve.ResourceRequest{Protocol: resolve.ProtocolTCP, Port: port, Path: servicehost.PathEcho}

	ctx := context.Background()
	addr, err := resolver.Resolve(ctx, req)
	if errors.Is(err, resolve.ErrNotFound) || errors.Is(err, fault.ErrTimedOut) {
		t.Skip("mDNS is not available on this host")
	}
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	f, err := b.BuildChannelFactory(channel.ShapeRequest, binding.Parameters{Target: &req, Resolver: resolver})
	if err != nil {
		t.Fatalf("BuildChannelFactory() error = %v", err)
	}
	err = channel.Use(ctx, f, addr, func(ch *channel.Channel) error {
		reply, err := ch.Request(ctx, message.NewString(b.MessageVersion(), servicehost.EchoAction, clientText), 5*time.Second)
		if err != nil {
			return err
		}
		text, err := reply.ReadBodyString()
		if err != nil {
			return err
		}
		if text != clientText+servicehost.ReplySuffix {
			return fmt.Errorf("reply = %q", text)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("request via discovered address failed: %v", err)
	}
}

// TestE2E_ConfiguredStack drives a config-file binding with compression
// and message security through the retry helper.
func TestE2E_ConfiguredStack(t *testing.T) {
	env := echotest.Start(t)
	addr := env.Address(t, transport.SchemeTCP, servicehost.PathMessage)

	cfg, err := config.Parse([]byte(`
bindings:
  protected:
    transport: net.tcp
    encoding: binary
    compression: default
    security:
      mode: message
      messageKey: "`+base64.StdEncoding.EncodeToString(echotest.MessageKey)+`"
    timeouts: {send: 5s}
endpoints:
  echo:
    binding: protected
    address: "`+addr.String()+`"
retry:
  attempts: 2
  initial: 10ms
`), config.FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ep, err := cfg.Endpoint("echo")
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}

	var rec log.Recorder
	params := ep.Parameters(binding.Parameters{ProtocolLogger: &rec})
	f, err := ep.Binding.BuildChannelFactory(channel.ShapeRequest, params)
	if err != nil {
		t.Fatalf("BuildChannelFactory() error = %v", err)
	}
	defer f.Abort()

	ctx := context.Background()
	var reply *message.Message
	err = retry.Do(ctx, f, ep.Address, cfg.RetryPolicy(), func(ctx context.Context, ch *channel.Channel) error {
		var err error
		reply, err = ch.Request(ctx, message.NewString(ep.Binding.MessageVersion(), servicehost.EchoAction, clientText), 0)
		return err
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	text, err := reply.ReadBodyString()
	if err != nil || text != clientText+servicehost.ReplySuffix {
		t.Fatalf("reply = %q, %v", text, err)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var states int
	for _, e := range rec.Events() {
		if e.StateChange != nil {
			states++
		}
	}
	if states == 0 {
		t.Error("no state changes were recorded")
	}
}

// TestE2E_ConcurrentRequests multiplexes many requests over one channel
// and checks every reply correlates with its own request.
func TestE2E_ConcurrentRequests(t *testing.T) {
	env := echotest.Start(t)
	b, err := binding.NetTCPBinding(security.Settings{}, binding.WithConcurrentRequests(true))
	if err != nil {
		t.Fatalf("NetTCPBinding() error = %v", err)
	}

	ctx := context.Background()
	f, err := b.BuildChannelFactory(channel.ShapeRequest, binding.Parameters{Pool: transport.NewPool(transport.PoolConfig{})})
	if err != nil {
		t.Fatalf("BuildChannelFactory() error = %v", err)
	}
	err = channel.Use(ctx, f, env.Address(t, transport.SchemeTCP, servicehost.PathEcho), func(ch *channel.Channel) error {
		const n = 32
		calls := make([]*channel.Call, n)
		for i := range calls {
			msg := message.NewString(b.MessageVersion(), servicehost.EchoAction, fmt.Sprintf("request-%02d", i))
			calls[i] = ch.RequestAsync(ctx, msg, 5*time.Second)
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i, call := range calls {
			wg.Add(1)
			go func(i int, call *channel.Call) {
				defer wg.Done()
				reply, err := call.Result()
				if err != nil {
					errs <- err
					return
				}
				text, err := reply.ReadBodyString()
				if want := fmt.Sprintf("request-%02d", i) + servicehost.ReplySuffix; err != nil || text != want {
					errs <- fmt.Errorf("call %d: reply %q, want %q (%v)", i, text, want, err)
				}
			}(i, call)
		}
		wg.Wait()
		close(errs)
		return errors.Join(collect(errs)...)
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestE2E_AbortDuringRequest aborts a channel while a request waits on a
// slow operation.
func TestE2E_AbortDuringRequest(t *testing.T) {
	release := make(chan struct{})
	svc := servicehost.NewService()
	svc.Handle("urn:test/Block", func(ctx context.Context, req *message.Message) (*message.Message, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return servicehost.EchoOperation(ctx, req)
	})
	env := echotest.Start(t, echotest.WithService(svc))
	defer close(release)

	b, err := binding.TextHTTPBinding()
	if err != nil {
		t.Fatalf("TextHTTPBinding() error = %v", err)
	}
	ctx := context.Background()
	f, err := b.BuildChannelFactory(channel.ShapeRequest, binding.Parameters{})
	if err != nil {
		t.Fatalf("BuildChannelFactory() error = %v", err)
	}
	defer f.Abort()
	if err := f.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ch, err := f.CreateChannel(env.Address(t, transport.SchemeHTTP, servicehost.PathCustom))
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	if err := ch.Open(ctx); err != nil {
		t.Fatalf("channel Open() error = %v", err)
	}

	call := ch.RequestAsync(ctx, message.NewString(b.MessageVersion(), "urn:test/Block", clientText), 10*time.Second)
	time.Sleep(100 * time.Millisecond)
	ch.Abort()

	select {
	case <-call.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("request did not observe the abort")
	}
	if _, err := call.Result(); !errors.Is(err, fault.ErrAborted) {
		t.Fatalf("Result() error = %v, want aborted", err)
	}
	if ch.State() != channel.StateClosed {
		t.Errorf("state = %v, want Closed", ch.State())
	}
}

func collect(errs <-chan error) []error {
	var out []error
	for err := range errs {
		out = append(out, err)
	}
	return out
}
