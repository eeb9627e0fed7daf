package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svcmodel/svcmodel-go/pkg/log"
)

// Subprotocol is negotiated on every websocket connection.
const Subprotocol = "svcmodel.frames.v1"

// wsIO carries one frame per binary websocket message.
type wsIO struct {
	conn    *websocket.Conn
	maxSize uint32
	writeMu sync.Mutex
	log     *frameLog
}

func newWSIO(conn *websocket.Conn, maxSize uint32) *wsIO {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	conn.SetReadLimit(int64(maxSize))
	return &wsIO{conn: conn, maxSize: maxSize}
}

func (w *wsIO) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, errors.Join(ErrConnectionClosed, err)
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, ErrMessageTooLarge
			}
			return nil, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			return nil, ErrMessageEmpty
		}
		w.log.emit(data, log.DirectionIn)
		return data, nil
	}
}

func (w *wsIO) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > w.maxSize {
		return ErrMessageTooLarge
	}
	w.writeMu.Lock()
	err := w.conn.WriteMessage(websocket.BinaryMessage, data)
	w.writeMu.Unlock()
	if err != nil {
		return err
	}
	w.log.emit(data, log.DirectionOut)
	return nil
}

// Close sends a close message before dropping the socket.
func (w *wsIO) Close() error {
	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}

func (w *wsIO) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }

func (w *wsIO) setLogger(logger log.Logger, connID string, role log.Role) {
	w.log = &frameLog{logger: logger, connID: connID, role: role, remoteAddr: addrString(w.conn.RemoteAddr())}
}

// WebSocketHandler accepts websocket upgrades and serves the resulting
// framed connections with Handler.
type WebSocketHandler struct {
	Handler        RequestHandler
	MaxMessageSize uint32
	KeepAlive      KeepAliveConfig
	ProtocolLogger log.Logger
	Logger         *slog.Logger

	// OnConnect is called for every accepted connection, if set.
	OnConnect func(conn *FramedConn, r *http.Request)

	mu    sync.Mutex
	conns map[*FramedConn]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    []string{Subprotocol},
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the request. The connection lives until the peer goes
// away or Shutdown is called.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		}
		return
	}

	fio := newWSIO(ws, h.MaxMessageSize)
	conn := newFramedConn(fio, connConfig{
		role:           log.RoleService,
		handler:        h.Handler,
		keepAlive:      h.KeepAlive,
		protocolLogger: h.ProtocolLogger,
		logger:         h.Logger,
	})
	if h.OnConnect != nil {
		h.OnConnect(conn, r)
	}

	h.mu.Lock()
	if h.conns == nil {
		h.conns = make(map[*FramedConn]struct{})
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-conn.Done()
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()
}

// Shutdown closes every open websocket connection.
func (h *WebSocketHandler) Shutdown(ctx context.Context) {
	h.mu.Lock()
	conns := make([]*FramedConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *FramedConn) {
			defer wg.Done()
			_ = c.Close(ctx)
		}(c)
	}
	wg.Wait()
}
