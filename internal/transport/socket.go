package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	sb "spectrum_bridge"

	"github.com/gorilla/websocket"
)

// Remote socket session tuning.
const (
	handshakeWait   = 5 * time.Second
	socketWriteWait = 10 * time.Second
)

// SocketTransport is the remote bridge session: binary websocket messages
// carry the raw protocol stream, text messages carry JSON control traffic.
type SocketTransport struct {
	url    string
	cb     Callbacks
	sm     stateMachine
	dialer *websocket.Dialer

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
	done chan struct{}
}

var _ Transport = (*SocketTransport)(nil)

func NewSocket(url string, cb Callbacks) *SocketTransport {
	t := &SocketTransport{
		url:    url,
		cb:     cb,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeWait},
	}
	t.sm.notify = cb.OnState
	return t
}

func (t *SocketTransport) State() sb.ConnectionState {
	return t.sm.current()
}

// Connect dials the remote bridge and waits for its capability
// announcement before declaring the session open.
func (t *SocketTransport) Connect(ctx context.Context) error {
	if !t.sm.swap(sb.Disconnected, sb.Connecting) {
		return &Error{Code: DeviceBusy, Op: "connect", Err: errors.New("transport already active")}
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.sm.set(sb.Disconnected)
		return &Error{Code: classifyDialError(resp, err), Op: "connect", Err: err}
	}

	// Handshake: the server announces its capabilities as the first text
	// message. A peer that never does is not a bridge.
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		t.sm.set(sb.Disconnected)
		return &Error{Code: NotSupported, Op: "handshake", Err: err}
	}
	_ = conn.SetReadDeadline(time.Time{})

	var hello ControlMessage
	if mt != websocket.TextMessage || json.Unmarshal(data, &hello) != nil || hello.Type != MsgConnection {
		_ = conn.Close()
		t.sm.set(sb.Disconnected)
		return &Error{Code: NotSupported, Op: "handshake", Err: errors.New("peer did not announce capabilities")}
	}

	t.mu.Lock()
	t.conn = conn
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.sm.set(sb.Open)
	t.dispatch(mt, data)
	go t.readPump(conn, done)
	return nil
}

// Send forwards one encoded device command, wrapped in the remote
// channel's JSON command envelope.
func (t *SocketTransport) Send(b []byte) error {
	return t.writeControl(ControlMessage{
		Type:    MsgCommand,
		Command: strings.TrimRight(string(b), "\r\n"),
	})
}

// EnableDeltaEncoding asks the remote bridge for sparse sweep updates above
// the given dB threshold.
func (t *SocketTransport) EnableDeltaEncoding(enabled bool, thresholdDB float64) error {
	return t.writeControl(ControlMessage{
		Type:      MsgEnableDeltaEncoding,
		Enabled:   &enabled,
		Threshold: thresholdDB,
	})
}

// RequestBaseline asks the remote bridge to resend a full sweep baseline.
func (t *SocketTransport) RequestBaseline() error {
	return t.writeControl(ControlMessage{Type: MsgRequestBaseline})
}

func (t *SocketTransport) writeControl(msg ControlMessage) error {
	if t.sm.current() != sb.Open {
		return &Error{Code: NotOpen, Op: "send"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return &Error{Code: NotOpen, Op: "send"}
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	if err := t.conn.WriteJSON(msg); err != nil {
		return &Error{Code: Closed, Op: "send", Err: err}
	}
	return nil
}

// Disconnect closes the socket. Idempotent; a best-effort close frame and
// any close error are swallowed so the transport always lands in
// Disconnected.
func (t *SocketTransport) Disconnect() error {
	if t.sm.current() == sb.Disconnected {
		return nil
	}
	t.sm.set(sb.Closing)

	t.mu.Lock()
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	if t.conn != nil {
		_ = t.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	t.sm.set(sb.Disconnected)
	return nil
}

func (t *SocketTransport) readPump(conn *websocket.Conn, done chan struct{}) {
	for {
		mt, data, err := conn.ReadMessage()
		select {
		case <-done:
			return
		default:
		}
		if err != nil {
			if t.cb.OnError != nil {
				t.cb.OnError(&Error{Code: Closed, Op: "read", Err: err})
			}
			_ = t.Disconnect()
			return
		}
		t.dispatch(mt, data)
	}
}

// dispatch routes a websocket message: binary is raw protocol bytes, text
// is a JSON control message. Unparseable control traffic is dropped; the
// stream continues.
func (t *SocketTransport) dispatch(messageType int, data []byte) {
	switch messageType {
	case websocket.BinaryMessage:
		if t.cb.OnChunk != nil {
			t.cb.OnChunk(data)
		}
	case websocket.TextMessage:
		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if t.cb.OnControl != nil {
			t.cb.OnControl(msg)
		}
	}
}

// classifyDialError maps a failed dial onto the transport taxonomy.
func classifyDialError(resp *http.Response, err error) ErrorCode {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return PermissionDenied
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return NotSupported
	}
	return DeviceBusy
}
