package transport

import sb "spectrum_bridge"

// Control-message types exchanged as JSON text frames on the remote
// channel, alongside the binary protocol stream.
const (
	MsgConnection          = "connection"
	MsgSweep               = "sweep"
	MsgConfig              = "config"
	MsgCommand             = "command"
	MsgSetFrequency        = "set_frequency"
	MsgStart               = "start"
	MsgStop                = "stop"
	MsgEnableDeltaEncoding = "enable_delta_encoding"
	MsgDeltaEncodingStatus = "delta_encoding_status"
	MsgRequestBaseline     = "request_baseline"
	MsgEvent               = "event"
)

// ControlMessage is the envelope for every JSON control message. Fields are
// populated per Type; absent fields stay at their zero value.
type ControlMessage struct {
	Type      string              `json:"type"`
	Enabled   *bool               `json:"enabled,omitempty"`
	Threshold float64             `json:"threshold,omitempty"`
	Features  []string            `json:"features,omitempty"`
	Command   string              `json:"command,omitempty"`
	StartMHz  float64             `json:"start_mhz,omitempty"`
	EndMHz    float64             `json:"end_mhz,omitempty"`
	Config    *sb.SweepConfig     `json:"config,omitempty"`
	Data      []sb.SpectrumSample `json:"data,omitempty"`
	Timestamp int64               `json:"timestamp,omitempty"`
}
