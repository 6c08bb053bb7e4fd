package stream

import (
	"bytes"
	"errors"
	"net/http"
)

// ErrTransportClosed is returned by writes after Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport carries frames from a session to one client. Transports negotiate
// lazily on the first write so a session that fails to open never commits a
// response.
type Transport interface {
	// Send pushes one encoded snapshot.
	Send(payload []byte) error
	// Heartbeat pushes a frame that carries no data but keeps idle
	// intermediaries from dropping the connection.
	Heartbeat() error
	// Close releases the transport. Only the first call has any effect.
	Close() error
}

var (
	dataPrefix     = []byte("data: ")
	frameEnd       = []byte("\n\n")
	heartbeatFrame = []byte(": keep-alive\n\n")
)

// EncodeDataFrame frames payload as an event-stream data record. Payloads
// spanning several lines become several data fields of the same event.
func EncodeDataFrame(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(payload) + len(dataPrefix) + len(frameEnd))
	for i, line := range bytes.Split(payload, []byte("\n")) {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(dataPrefix)
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
	}
	buf.Write(frameEnd)
	return buf.Bytes()
}

// SSETransport writes frames as a text/event-stream response.
type SSETransport struct {
	w       http.ResponseWriter
	started bool
	closed  bool
}

// NewSSETransport wraps w. Nothing is written until the first frame.
func NewSSETransport(w http.ResponseWriter) *SSETransport {
	return &SSETransport{w: w}
}

// Started reports whether response headers have been committed.
func (t *SSETransport) Started() bool {
	return t.started
}

func (t *SSETransport) start() {
	if t.started {
		return
	}
	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	t.w.WriteHeader(http.StatusOK)
	t.started = true
}

func (t *SSETransport) Send(payload []byte) error {
	return t.write(EncodeDataFrame(payload))
}

func (t *SSETransport) Heartbeat() error {
	return t.write(heartbeatFrame)
}

func (t *SSETransport) write(frame []byte) error {
	if t.closed {
		return ErrTransportClosed
	}
	t.start()
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	if f, ok := t.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Close marks the transport closed. The HTTP server finishes the response
// once the handler returns.
func (t *SSETransport) Close() error {
	t.closed = true
	return nil
}
