package servicehost

import (
	"context"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// Endpoint is one addressable service endpoint: a path, an encoder and the
// security applied to its requests.
type Endpoint struct {
	Path    string
	Encoder wire.Encoder

	// Basic, if set, requires transport credentials accepted by it.
	Basic security.CredentialValidator

	// Security, if set, unprotects requests and protects replies.
	Security *security.Server

	Service *Service

	diag   diagnostics.Sink
	plog   log.Logger
	logger *slog.Logger
}

// result is the outcome of processing one request payload.
type result struct {
	status      wire.Status
	contentType string
	body        []byte
	detail      string
	fault       bool
}

// Credentials are transport-level username credentials of a request.
type Credentials struct {
	Username string
	Password string
}

// process runs one encoded request through authentication, decoding,
// security, decompression and dispatch. A one-way request produces an
// empty OK result.
func (e *Endpoint) process(ctx context.Context, data []byte, contentType string, creds *Credentials, remote string, oneWay bool) result {
	if e.Basic != nil {
		if creds == nil {
			e.diag.Emit(ctx, diagnostics.TransportAuthenticationFailure, "request without credentials",
				slog.String("endpoint", e.Path), slog.String("remote", remote))
			return result{status: wire.StatusUnauthorized, detail: "credentials required"}
		}
		if err := security.Authenticate(ctx, e.Basic, creds.Username, creds.Password); err != nil {
			e.diag.Emit(ctx, diagnostics.TransportAuthenticationFailure, "credentials rejected",
				slog.String("endpoint", e.Path), slog.String("user", creds.Username), slog.String("remote", remote))
			return result{status: wire.StatusUnauthorized, detail: "credentials rejected"}
		}
		e.diag.Emit(ctx, diagnostics.TransportAuthenticationSuccess, "credentials accepted",
			slog.String("endpoint", e.Path), slog.String("user", creds.Username))
	}

	req, err := e.Encoder.Decode(data, contentType)
	if err != nil {
		e.debug("undecodable request", "endpoint", e.Path, "error", err)
		return result{status: wire.StatusBadRequest, detail: err.Error()}
	}
	e.logMessage(log.DirectionIn, req, len(data), remote)

	if e.Security != nil {
		plain, _, err := e.Security.Accept(ctx, req)
		if err != nil {
			return e.reply(req, faultReply(req, &fault.RemoteFault{
				Code:   fault.CodeInvalidSecurity,
				Reason: "the security of the message could not be verified",
				Action: req.Action(),
			}), false, remote)
		}
		req = plain
	}

	_, compressed := req.Headers().Get(wire.HeaderCompression)
	if compressed {
		if req, err = wire.Decompress(req); err != nil {
			return result{status: wire.StatusBadRequest, detail: err.Error()}
		}
	}

	reply := e.Service.Dispatch(ctx, req)
	if oneWay || reply == nil {
		return result{status: wire.StatusOK}
	}
	return e.reply(req, reply, compressed, remote)
}

// reply encodes reply, compressing and protecting it as the request was.
func (e *Endpoint) reply(req, reply *message.Message, compress bool, remote string) result {
	var err error
	if compress && !reply.IsFault() {
		if reply, err = wire.Compress(reply, zstd.SpeedDefault); err != nil {
			return result{status: wire.StatusInternal, detail: err.Error()}
		}
	}
	if e.Security != nil {
		if reply, err = e.Security.Reply(reply); err != nil {
			return result{status: wire.StatusInternal, detail: err.Error()}
		}
	}
	data, err := e.Encoder.Encode(reply)
	if err != nil {
		return result{status: wire.StatusInternal, detail: err.Error()}
	}
	e.logMessage(log.DirectionOut, reply, len(data), remote)
	if reply.IsFault() {
		e.debug("fault reply", "endpoint", e.Path, "action", req.Action(), "code", reply.Fault().Code)
		return result{status: wire.StatusInternal, contentType: e.Encoder.ContentType(), body: data, fault: true}
	}
	return result{status: wire.StatusOK, contentType: e.Encoder.ContentType(), body: data}
}

func (e *Endpoint) logMessage(dir log.Direction, msg *message.Message, size int, remote string) {
	ev := &log.MessageEvent{
		Type:        log.MessageTypeRequest,
		Action:      msg.Action(),
		MessageID:   msg.ID(),
		RelatesTo:   msg.RelatesTo(),
		ContentType: e.Encoder.ContentType(),
		Size:        size,
	}
	switch {
	case msg.IsFault():
		ev.Type = log.MessageTypeFault
		ev.FaultCode = msg.Fault().Code
	case dir == log.DirectionOut:
		ev.Type = log.MessageTypeReply
	}
	e.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  dir,
		Layer:      log.LayerEncoder,
		Category:   log.CategoryMessage,
		LocalRole:  log.RoleService,
		RemoteAddr: remote,
		Endpoint:   e.Path,
		Message:    ev,
	})
}

func (e *Endpoint) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
