package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/svcmodel/svcmodel-go/internal/echotest"
	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

func TestFormatFrameEvent(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        &log.FrameEvent{Size: 128, Data: []byte{0xa1, 0x01}},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{"2026-01-28T10:15:32.123456Z", "[conn:abc12345]", "OUT", "TRANSPORT", "Frame", "128 bytes", "a101"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatMessageAndErrorEvents(t *testing.T) {
	elapsed := 1500 * time.Microsecond
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Layer:     log.LayerEncoder,
		ChannelID: "chan1234-5678",
		Message: &log.MessageEvent{
			Type:      log.MessageTypeReply,
			Action:    "urn:a/Response",
			RelatesTo: "urn:uuid:1",
			FaultCode: "ActionNotSupported",
			Elapsed:   &elapsed,
		},
	})
	formatEvent(&buf, log.Event{
		Layer:    log.LayerChannel,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerChannel,
			Message: "rejected",
			EventID: uint32(diagnostics.TransportAuthenticationFailure),
		},
	})
	output := buf.String()

	for _, want := range []string{"ch:chan1234", "REPLY", "urn:a/Response", "Fault: ActionNotSupported", "1.500ms", "TransportAuthenticationFailure"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestRunViewFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.svclog")
	fl, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	fl.Log(log.Event{Timestamp: time.Now(), Layer: log.LayerEncoder, Message: &log.MessageEvent{Action: "urn:keep"}})
	fl.Log(log.Event{Timestamp: time.Now(), Layer: log.LayerEncoder, Message: &log.MessageEvent{Action: "urn:skip"}})
	fl.Log(log.Event{Timestamp: time.Now(), Layer: log.LayerChannel, Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityChannel, OldState: "Opened", NewState: "Faulted"}})
	if err := fl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{Action: "urn:keep"}, &buf); err != nil {
		t.Fatalf("RunView() error = %v", err)
	}
	if !strings.Contains(buf.String(), "urn:keep") || strings.Contains(buf.String(), "urn:skip") {
		t.Errorf("action filter not applied: %s", buf.String())
	}

	flags := viewFlags{layer: "channel"}
	filter, err := flags.filter()
	if err != nil {
		t.Fatalf("filter() error = %v", err)
	}
	buf.Reset()
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Opened -> Faulted") || strings.Contains(buf.String(), "urn:") {
		t.Errorf("layer filter not applied: %s", buf.String())
	}

	buf.Reset()
	if err := RunExport(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunExport() error = %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Errorf("export wrote %d lines, want 3", lines)
	}
}

func TestParseFlags(t *testing.T) {
	if _, err := ParseLayer("encoder"); err != nil {
		t.Errorf("ParseLayer(encoder) error = %v", err)
	}
	if _, err := ParseLayer("wire"); err == nil {
		t.Error("ParseLayer(wire) should fail")
	}
	if d, err := ParseDirection("IN"); err != nil || d != log.DirectionIn {
		t.Errorf("ParseDirection(IN) = %v, %v", d, err)
	}
	if _, err := ParseCategory("snapshot"); err == nil {
		t.Error("ParseCategory(snapshot) should fail")
	}
	if r, err := ParseRole("service"); err != nil || r != log.RoleService {
		t.Errorf("ParseRole(service) = %v, %v", r, err)
	}
	bad := viewFlags{direction: "sideways"}
	if _, err := bad.filter(); err == nil {
		t.Error("filter() should reject an unknown direction")
	}
}

func TestRunDecode(t *testing.T) {
	for _, input := range []string{"0xc0060008", "TransportAuthenticationFailure"} {
		var buf bytes.Buffer
		if err := RunDecode(&buf, input); err != nil {
			t.Fatalf("RunDecode(%q) error = %v", input, err)
		}
		for _, want := range []string{"0xc0060008", "Error", "SecurityAudit", "0x0008", "TransportAuthenticationFailure"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("RunDecode(%q): expected %q in %s", input, want, buf.String())
			}
		}
	}

	var buf bytes.Buffer
	if err := RunDecode(&buf, "0x00ff0001"); err != nil {
		t.Fatalf("RunDecode() error = %v", err)
	}
	if !strings.Contains(buf.String(), "(unregistered)") {
		t.Errorf("expected unregistered marker, got %s", buf.String())
	}
	if err := RunDecode(&buf, "NoSuchEvent"); err == nil {
		t.Error("RunDecode(NoSuchEvent) should fail")
	}
}

func TestRunEvents(t *testing.T) {
	var buf bytes.Buffer
	if err := RunEvents(&buf, "securityaudit"); err != nil {
		t.Fatalf("RunEvents() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "MessageAuthenticationFailure") {
		t.Errorf("expected SecurityAudit entries, got %s", out)
	}
	if strings.Contains(out, "FailedToSetupTracing") {
		t.Errorf("facility filter not applied: %s", out)
	}
	if err := RunEvents(&buf, "Kernel"); err == nil {
		t.Error("RunEvents(Kernel) should fail")
	}
}

func TestRequestCommand(t *testing.T) {
	env := echotest.Start(t)
	addr := env.Address(t, transport.SchemeTCP, servicehost.PathEcho)
	capture := filepath.Join(t.TempDir(), "client.svclog")

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"request", "--protocol-log", capture, "--address", addr.String(), "--body", "hello", "--timeout", "5s"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("request failed: %v\n%s", err, errOut.String())
	}
	if !strings.Contains(out.String(), "hello"+servicehost.ReplySuffix) {
		t.Errorf("unexpected output: %s", out.String())
	}
	if !strings.Contains(out.String(), "Action: "+servicehost.EchoAction+"Response") {
		t.Errorf("reply action missing: %s", out.String())
	}

	events, err := readAll(capture)
	if err != nil {
		t.Fatalf("reading capture: %v", err)
	}
	if len(events) == 0 {
		t.Error("protocol log is empty")
	}
}

func TestRequestCommandRemoteFault(t *testing.T) {
	env := echotest.Start(t)
	addr := env.Address(t, transport.SchemeHTTP, servicehost.PathCustom)

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"request", "--address", addr.String(), "--action", "urn:wrong"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "ActionNotSupported") {
		t.Fatalf("expected ActionNotSupported fault, got %v", err)
	}
}

func TestShellSession(t *testing.T) {
	env := echotest.Start(t)
	opts := &targetOptions{address: env.Address(t, transport.SchemePipe, servicehost.PathEcho).String()}
	obs, err := (&globalOptions{}).observe(&bytes.Buffer{}, log.RoleClient)
	if err != nil {
		t.Fatalf("observe() error = %v", err)
	}
	ctx := context.Background()
	tgt, err := opts.resolve(ctx, obs)
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	f, err := tgt.openFactory(ctx)
	if err != nil {
		t.Fatalf("openFactory() error = %v", err)
	}
	defer f.Abort()

	var out bytes.Buffer
	s := &shell{factory: f, target: tgt, action: servicehost.EchoAction, out: &out}
	for _, line := range []string{"hello", "action urn:unknown", "send again", "state"} {
		if !s.exec(ctx, line) {
			t.Fatalf("exec(%q) ended the session", line)
		}
	}
	if s.exec(ctx, "quit") {
		t.Error("quit should end the session")
	}
	s.closeChannel()

	output := out.String()
	for _, want := range []string{"hello" + servicehost.ReplySuffix, "ActionNotSupported", "Channel: OPENED"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in shell output:\n%s", want, output)
		}
	}
}

func readAll(path string) ([]log.Event, error) {
	r, err := log.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}
