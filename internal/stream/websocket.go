package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait   = 10 * time.Second
	wsReadLimit   = 512
	wsPongTimeout = 60 * time.Second
)

// WebSocketTransport delivers the same frames over a websocket: snapshots as
// text messages and heartbeats as ping control frames. The upgrade happens on
// the first write.
type WebSocketTransport struct {
	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader

	conn      *websocket.Conn
	attempted bool
	closed    bool
	gone      chan struct{}
	goneOnce  sync.Once
}

// NewWebSocketTransport prepares an upgrade of r. The upgrader decides which
// origins are accepted.
func NewWebSocketTransport(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) *WebSocketTransport {
	return &WebSocketTransport{w: w, r: r, upgrader: upgrader, gone: make(chan struct{})}
}

// Gone is closed when the peer disconnects. Hijacked connections do not
// cancel the request context, so callers watch this instead.
func (t *WebSocketTransport) Gone() <-chan struct{} {
	return t.gone
}

// Started reports whether an upgrade has been attempted. After that the
// response belongs to the upgrader, successful or not.
func (t *WebSocketTransport) Started() bool {
	return t.attempted
}

func (t *WebSocketTransport) connect() error {
	if t.conn != nil {
		return nil
	}
	if t.attempted {
		return ErrTransportClosed
	}
	t.attempted = true
	conn, err := t.upgrader.Upgrade(t.w, t.r, nil)
	if err != nil {
		t.markGone()
		return err
	}
	t.conn = conn
	go t.readPump(conn)
	return nil
}

// readPump discards client messages; it exists to process control frames and
// to notice the peer going away.
func (t *WebSocketTransport) readPump(conn *websocket.Conn) {
	defer t.markGone()
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (t *WebSocketTransport) markGone() {
	t.goneOnce.Do(func() { close(t.gone) })
}

func (t *WebSocketTransport) Send(payload []byte) error {
	if t.closed {
		return ErrTransportClosed
	}
	if err := t.connect(); err != nil {
		return err
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *WebSocketTransport) Heartbeat() error {
	if t.closed {
		return ErrTransportClosed
	}
	if err := t.connect(); err != nil {
		return err
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (t *WebSocketTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		t.markGone()
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	return t.conn.Close()
}
