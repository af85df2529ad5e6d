package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/dsp"
	"spectrum_bridge/internal/protocol"
	"spectrum_bridge/internal/service"
	"spectrum_bridge/internal/session"
	"spectrum_bridge/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 1 << 16
)

const (
	encodingFull  = "full"
	encodingDelta = "delta"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are trusted LAN dashboards; the control API carries auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sweepEnvelope is one spectrum update pushed to a websocket client, either a
// full sweep or a sparse delta against the client's baseline.
type sweepEnvelope struct {
	Type             string              `json:"type"`
	Encoding         string              `json:"encoding"`
	Config           sb.SweepConfig      `json:"config"`
	Data             []sb.SpectrumSample `json:"data,omitempty"`
	Deltas           []sb.DeltaPoint     `json:"deltas,omitempty"`
	BaselineAgeSec   float64             `json:"baseline_age_sec,omitempty"`
	CompressionRatio float64             `json:"compression_ratio,omitempty"`
	Peaks            []sb.SpectrumSample `json:"peaks,omitempty"`
	Timestamp        int64               `json:"timestamp"`
}

type eventEnvelope struct {
	Type string      `json:"type"`
	Data sb.LogEvent `json:"data"`
}

type stateEnvelope struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// wsClient holds the per-connection stream state. It is owned by the writer
// loop; the reader goroutine only forwards parsed messages.
type wsClient struct {
	conn         *websocket.Conn
	deltaEnabled bool
	enc          *dsp.DeltaEncoder
}

func (w *wsClient) writeJSON(v interface{}) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(v)
}

// wsConnect upgrades the request and streams spectrum updates, threshold
// events and connection-state changes until the client goes away.
func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer conn.Close()

	client := &wsClient{
		conn: conn,
		enc:  dsp.NewDeltaEncoder(dsp.DefaultDeltaThresholdDB, dsp.DefaultBaselineRefresh),
	}

	id, events := h.services.Pipeline.Subscribe()
	defer h.services.Pipeline.Unsubscribe(id)

	// Capability announcement, so clients know delta encoding is available.
	st, _ := h.services.Monitoring.GetStatus(c.Request.Context())
	if err := client.writeJSON(transport.ControlMessage{
		Type:     transport.MsgConnection,
		Features: []string{"delta_encoding"},
		Config:   &st.Config,
	}); err != nil {
		return
	}

	ctl := make(chan transport.ControlMessage, 8)
	done := make(chan struct{})
	// writerGone unblocks a reader mid-send once this loop returns, so a
	// full ctl buffer cannot strand the reader goroutine.
	writerGone := make(chan struct{})
	defer close(writerGone)
	go h.wsReader(client, ctl, done, writerGone)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.wsSendEvent(client, ev); err != nil {
				return
			}
		case msg := <-ctl:
			if err := h.wsHandleControl(c, client, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsReader pumps client messages into ctl and closes done when the
// connection drops. Malformed JSON is dropped, not fatal.
func (h *Handler) wsReader(client *wsClient, ctl chan<- transport.ControlMessage, done chan<- struct{}, writerGone <-chan struct{}) {
	defer close(done)
	client.conn.SetReadLimit(wsReadLimit)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg transport.ControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if h.log != nil {
				h.log.Warnw("ws_bad_message", "err", err)
			}
			continue
		}
		select {
		case ctl <- msg:
		case <-writerGone:
			return
		}
	}
}

func (h *Handler) wsSendEvent(client *wsClient, ev session.Event) error {
	switch ev := ev.(type) {
	case session.SnapshotEvent:
		return client.writeJSON(h.sweepPayload(client, ev.Snapshot))
	case session.AlertsEvent:
		for _, e := range ev.Events {
			if err := client.writeJSON(eventEnvelope{Type: transport.MsgEvent, Data: e}); err != nil {
				return err
			}
		}
	case session.ConnectionEvent:
		return client.writeJSON(stateEnvelope{Type: "connection_state", State: ev.State.String()})
	case session.ConfigEvent:
		cfg := ev.Config
		return client.writeJSON(transport.ControlMessage{Type: transport.MsgConfig, Config: &cfg})
	}
	return nil
}

// sweepPayload renders one snapshot for this client: a full sweep, or a
// sparse update when the client opted into delta encoding.
func (h *Handler) sweepPayload(client *wsClient, snap sb.SpectrumSnapshot) sweepEnvelope {
	env := sweepEnvelope{
		Type:      transport.MsgSweep,
		Encoding:  encodingFull,
		Config:    snap.Config,
		Peaks:     snap.Peaks,
		Timestamp: snap.Timestamp.Unix(),
	}
	if !client.deltaEnabled {
		env.Data = snap.Samples
		return env
	}

	upd := client.enc.Encode(snap.Samples, snap.Timestamp)
	if upd.Full {
		env.Data = upd.Samples
		return env
	}
	env.Encoding = encodingDelta
	env.Deltas = upd.Deltas
	env.BaselineAgeSec = upd.BaselineAgeSec
	env.CompressionRatio = upd.CompressionRatio
	return env
}

func (h *Handler) wsHandleControl(c *gin.Context, client *wsClient, msg transport.ControlMessage) error {
	ctx := c.Request.Context()
	switch msg.Type {
	case transport.MsgEnableDeltaEncoding:
		enabled := true
		if msg.Enabled != nil {
			enabled = *msg.Enabled
		}
		client.deltaEnabled = enabled
		if msg.Threshold > 0 {
			client.enc.SetThreshold(msg.Threshold)
		}
		// New baseline on every toggle so the first delta frame is a full.
		client.enc.Reset()
		status := enabled
		return client.writeJSON(transport.ControlMessage{
			Type:      transport.MsgDeltaEncodingStatus,
			Enabled:   &status,
			Threshold: msg.Threshold,
		})

	case transport.MsgRequestBaseline:
		client.enc.Reset()

	case transport.MsgSetFrequency:
		if err := h.services.Sweep.SetRange(ctx, service.RangeParams{StartMHz: msg.StartMHz, EndMHz: msg.EndMHz}); err != nil && h.log != nil {
			h.log.Warnw("ws_set_frequency_failed", "err", err)
		}

	case transport.MsgStart:
		if err := h.services.Sweep.Start(ctx); err != nil && h.log != nil {
			h.log.Warnw("ws_start_failed", "err", err)
		}

	case transport.MsgStop:
		if err := h.services.Sweep.Stop(ctx); err != nil && h.log != nil {
			h.log.Warnw("ws_stop_failed", "err", err)
		}

	case transport.MsgCommand:
		h.wsRawCommand(ctx, msg.Command)

	default:
		if h.log != nil {
			h.log.Debugw("ws_unknown_message", "type", msg.Type)
		}
	}
	return nil
}

// wsRawCommand maps the legacy raw-command message form onto control
// operations; anything else is refused rather than forwarded verbatim.
func (h *Handler) wsRawCommand(ctx context.Context, command string) {
	var err error
	switch strings.TrimRight(strings.TrimSpace(command), "\r\n") {
	case strings.TrimRight(string(protocol.RequestConfig()), "\r\n"):
		err = h.services.Sweep.RequestConfig(ctx)
	case strings.TrimRight(string(protocol.StartSweep()), "\r\n"):
		err = h.services.Sweep.Start(ctx)
	case strings.TrimRight(string(protocol.StopSweep()), "\r\n"):
		err = h.services.Sweep.Stop(ctx)
	default:
		if h.log != nil {
			h.log.Warnw("ws_command_refused", "command", command)
		}
		return
	}
	if err != nil && h.log != nil {
		h.log.Warnw("ws_command_failed", "command", command, "err", err)
	}
}
