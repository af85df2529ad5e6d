package protocol

import (
	"fmt"
	"strconv"

	sb "spectrum_bridge"
)

// Message is a decoded frame: SweepFrame, ConfigFrame or TextResponse.
type Message interface {
	message()
}

// SweepFrame carries the raw amplitude bytes of one sweep, one byte per
// step. Decoding to dBm happens in Assemble so the raw frame stays cheap to
// pass across the pipeline.
type SweepFrame struct {
	Raw []byte
}

// ConfigFrame carries the span the device reports after a config request or
// a frequency change.
type ConfigFrame struct {
	StartFreqMHz float64
	EndFreqMHz   float64
}

// TextResponse is an opaque diagnostic line from the device.
type TextResponse struct {
	Text string
}

func (SweepFrame) message()   {}
func (ConfigFrame) message()  {}
func (TextResponse) message() {}

// FrameError reports an unparseable frame body. The frame is already
// consumed when this is returned; the stream continues.
type FrameError struct {
	Type   byte
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame type %q: %s", e.Type, e.Reason)
}

// configFieldWidth is the width of the zero-padded kHz fields in a config
// body: <start:7><span:7>, both ASCII decimal.
const configFieldWidth = 7

// Decode maps a frame to its message. Sweep and response frames cannot
// fail; a malformed config body returns a *FrameError and no message.
func Decode(f Frame) (Message, error) {
	switch f.Type {
	case TypeSweep:
		return SweepFrame{Raw: f.Body}, nil
	case TypeConfig:
		return decodeConfig(f.Body)
	case TypeResponse:
		return TextResponse{Text: string(f.Body)}, nil
	}
	return nil, &FrameError{Type: f.Type, Reason: "unrecognized frame type"}
}

// decodeConfig parses fixed-width ASCII decimal kHz fields into MHz.
func decodeConfig(body []byte) (Message, error) {
	if len(body) < 2*configFieldWidth {
		return nil, &FrameError{Type: TypeConfig, Reason: fmt.Sprintf("body too short: %d bytes", len(body))}
	}
	startKHz, err := strconv.Atoi(string(body[:configFieldWidth]))
	if err != nil {
		return nil, &FrameError{Type: TypeConfig, Reason: "start field is not decimal"}
	}
	spanKHz, err := strconv.Atoi(string(body[configFieldWidth : 2*configFieldWidth]))
	if err != nil {
		return nil, &FrameError{Type: TypeConfig, Reason: "span field is not decimal"}
	}
	start := float64(startKHz) / 1000.0
	return ConfigFrame{
		StartFreqMHz: start,
		EndFreqMHz:   start + float64(spanKHz)/1000.0,
	}, nil
}

// Amplitude converts a raw device byte to dBm. The device encodes 0.5 dB
// steps as unsigned offsets below 0 dBm, so 0x11 (17) is -8.5 dBm.
func Amplitude(raw byte) float64 {
	return -float64(raw) / 2.0
}

// Assemble converts a sweep frame plus the session span into an ordered
// sample sequence, ascending by frequency. The step count comes from the
// frame itself; the config contributes only the frequency axis.
func Assemble(sf SweepFrame, cfg sb.SweepConfig) []sb.SpectrumSample {
	n := len(sf.Raw)
	samples := make([]sb.SpectrumSample, n)
	var step float64
	if n > 1 {
		step = (cfg.EndFreqMHz - cfg.StartFreqMHz) / float64(n-1)
	}
	for i, raw := range sf.Raw {
		samples[i] = sb.SpectrumSample{
			FrequencyMHz: cfg.StartFreqMHz + float64(i)*step,
			AmplitudeDBm: Amplitude(raw),
		}
	}
	return samples
}
