package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sb "spectrum_bridge"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// bridgeServer is a minimal remote-bridge stand-in: it announces its
// capabilities on connect and records everything the client sends.
type bridgeServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan ControlMessage
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	b := &bridgeServer{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan ControlMessage, 16),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- conn
		_ = conn.WriteJSON(ControlMessage{
			Type:     MsgConnection,
			Features: []string{"delta_encoding"},
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg ControlMessage
			if json.Unmarshal(data, &msg) == nil {
				b.received <- msg
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *bridgeServer) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *bridgeServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(time.Second):
		t.Fatal("server saw no connection")
		return nil
	}
}

func (b *bridgeServer) next(t *testing.T) ControlMessage {
	t.Helper()
	select {
	case msg := <-b.received:
		return msg
	case <-time.After(time.Second):
		t.Fatal("server received no message")
		return ControlMessage{}
	}
}

func TestSocketConnectHandshake(t *testing.T) {
	bridge := newBridgeServer(t)

	controls := make(chan ControlMessage, 4)
	rec := &stateRecorder{}
	tr := NewSocket(bridge.url(), Callbacks{
		OnControl: func(m ControlMessage) { controls <- m },
		OnState:   rec.record,
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if tr.State() != sb.Open {
		t.Errorf("state = %v, want Open", tr.State())
	}

	select {
	case msg := <-controls:
		if msg.Type != MsgConnection {
			t.Errorf("first control message type = %q, want %q", msg.Type, MsgConnection)
		}
		if len(msg.Features) != 1 || msg.Features[0] != "delta_encoding" {
			t.Errorf("features = %v", msg.Features)
		}
	case <-time.After(time.Second):
		t.Fatal("capability announcement not dispatched")
	}

	states := rec.snapshot()
	if len(states) < 2 || states[0] != sb.Connecting || states[1] != sb.Open {
		t.Errorf("transitions = %v", states)
	}
}

func TestSocketSendWrapsCommand(t *testing.T) {
	bridge := newBridgeServer(t)
	tr := NewSocket(bridge.url(), Callbacks{})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if err := tr.Send([]byte("#0C3\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg := bridge.next(t)
	if msg.Type != MsgCommand {
		t.Errorf("type = %q, want %q", msg.Type, MsgCommand)
	}
	if msg.Command != "#0C3" {
		t.Errorf("command = %q, want %q (terminator stripped)", msg.Command, "#0C3")
	}
}

func TestSocketEnableDeltaEncoding(t *testing.T) {
	bridge := newBridgeServer(t)
	tr := NewSocket(bridge.url(), Callbacks{})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if err := tr.EnableDeltaEncoding(true, 2.5); err != nil {
		t.Fatalf("EnableDeltaEncoding: %v", err)
	}

	msg := bridge.next(t)
	if msg.Type != MsgEnableDeltaEncoding {
		t.Errorf("type = %q", msg.Type)
	}
	if msg.Enabled == nil || !*msg.Enabled {
		t.Error("enabled flag not set")
	}
	if msg.Threshold != 2.5 {
		t.Errorf("threshold = %v, want 2.5", msg.Threshold)
	}
}

func TestSocketRequestBaseline(t *testing.T) {
	bridge := newBridgeServer(t)
	tr := NewSocket(bridge.url(), Callbacks{})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if err := tr.RequestBaseline(); err != nil {
		t.Fatalf("RequestBaseline: %v", err)
	}
	if msg := bridge.next(t); msg.Type != MsgRequestBaseline {
		t.Errorf("type = %q", msg.Type)
	}
}

func TestSocketBinaryMessagesBecomeChunks(t *testing.T) {
	bridge := newBridgeServer(t)
	chunks := make(chan []byte, 1)
	tr := NewSocket(bridge.url(), Callbacks{
		OnChunk: func(b []byte) { chunks <- b },
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	conn := bridge.conn(t)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x24, 0x53, 0x01, 0x42}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case got := <-chunks:
		if len(got) != 4 || got[3] != 0x42 {
			t.Errorf("chunk = %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("binary message not delivered as chunk")
	}
}

func TestSocketMalformedControlDropped(t *testing.T) {
	bridge := newBridgeServer(t)
	controls := make(chan ControlMessage, 4)
	tr := NewSocket(bridge.url(), Callbacks{
		OnControl: func(m ControlMessage) { controls <- m },
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	<-controls // capability announcement

	conn := bridge.conn(t)
	_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	_ = conn.WriteJSON(ControlMessage{Type: MsgConfig})

	select {
	case msg := <-controls:
		if msg.Type != MsgConfig {
			t.Errorf("type = %q, want %q", msg.Type, MsgConfig)
		}
	case <-time.After(time.Second):
		t.Fatal("valid message after malformed one was not delivered")
	}
}

func TestSocketConnectRejectsNonBridgePeer(t *testing.T) {
	cases := []struct {
		name  string
		first func(*websocket.Conn) error
	}{
		{"binary first message", func(c *websocket.Conn) error {
			return c.WriteMessage(websocket.BinaryMessage, []byte{0x24, 0x53})
		}},
		{"non-json text", func(c *websocket.Conn) error {
			return c.WriteMessage(websocket.TextMessage, []byte("hello"))
		}},
		{"wrong control type", func(c *websocket.Conn) error {
			return c.WriteJSON(ControlMessage{Type: MsgConfig})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := testUpgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				defer conn.Close()
				_ = tc.first(conn)
				_, _, _ = conn.ReadMessage() // hold the socket open
			}))
			defer srv.Close()

			tr := NewSocket("ws"+strings.TrimPrefix(srv.URL, "http"), Callbacks{})
			err := tr.Connect(context.Background())
			var terr *Error
			if !errors.As(err, &terr) || terr.Code != NotSupported {
				t.Fatalf("error = %v, want NOT_SUPPORTED", err)
			}
			if tr.State() != sb.Disconnected {
				t.Errorf("state = %v, want Disconnected", tr.State())
			}
		})
	}
}

func TestSocketConnectNonWebsocketEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewSocket("ws"+strings.TrimPrefix(srv.URL, "http"), Callbacks{})
	err := tr.Connect(context.Background())
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != NotSupported {
		t.Fatalf("error = %v, want NOT_SUPPORTED", err)
	}
	if tr.State() != sb.Disconnected {
		t.Errorf("state = %v, want Disconnected", tr.State())
	}
}

func TestSocketConnectUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewSocket("ws"+strings.TrimPrefix(srv.URL, "http"), Callbacks{})
	err := tr.Connect(context.Background())
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != PermissionDenied {
		t.Fatalf("error = %v, want PERMISSION_DENIED", err)
	}
}

func TestSocketSendNotOpen(t *testing.T) {
	tr := NewSocket("ws://127.0.0.1:1/ws", Callbacks{})
	err := tr.Send([]byte("#0C0\r\n"))
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != NotOpen {
		t.Fatalf("error = %v, want NOT_OPEN", err)
	}
}

func TestSocketDisconnectIdempotent(t *testing.T) {
	bridge := newBridgeServer(t)
	tr := NewSocket(bridge.url(), Callbacks{})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if tr.State() != sb.Disconnected {
		t.Errorf("state = %v, want Disconnected", tr.State())
	}
}
