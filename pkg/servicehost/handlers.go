package servicehost

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/svcmodel/svcmodel-go/pkg/transport"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// httpHandler serves one endpoint over HTTP.
type httpHandler struct {
	ep      *Endpoint
	maxBody int64
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.maxBody {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}

	var creds *Credentials
	if user, pass, ok := r.BasicAuth(); ok {
		creds = &Credentials{Username: user, Password: pass}
	}

	res := h.ep.process(r.Context(), data, r.Header.Get("Content-Type"), creds, r.RemoteAddr, false)
	switch {
	case res.status == wire.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Basic realm="svcmodel"`)
		http.Error(w, res.detail, http.StatusUnauthorized)
	case res.body == nil && res.status == wire.StatusOK:
		w.WriteHeader(http.StatusAccepted)
	case res.body == nil:
		http.Error(w, res.detail, res.status.HTTPStatus())
	default:
		w.Header().Set("Content-Type", res.contentType)
		w.WriteHeader(res.status.HTTPStatus())
		_, _ = w.Write(res.body)
	}
}

// frameRouter serves framed requests, routing them by frame path.
type frameRouter struct {
	endpoints map[string]*Endpoint
}

func (fr *frameRouter) ServeFrame(ctx context.Context, c *transport.FramedConn, f *wire.Frame) *wire.Frame {
	ep, ok := fr.endpoints[f.Path]
	if !ok {
		return &wire.Frame{Status: wire.StatusNotFound, Detail: "no endpoint at " + f.Path}
	}
	var creds *Credentials
	if f.Auth != nil {
		creds = &Credentials{Username: f.Auth.Username, Password: f.Auth.Password}
	}
	res := ep.process(ctx, f.Body, f.ContentType, creds, remoteString(c.RemoteAddr()), f.Kind == wire.FrameOneWay)

	if f.Kind == wire.FrameDuplex {
		if res.body != nil {
			_ = c.Send(ctx, &wire.Frame{Kind: wire.FrameDuplex, Path: f.Path, ContentType: res.contentType, Body: res.body})
		}
		return nil
	}
	return &wire.Frame{Status: res.status, ContentType: res.contentType, Body: res.body, Detail: res.detail}
}

func remoteString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

var _ transport.RequestHandler = (*frameRouter)(nil)
