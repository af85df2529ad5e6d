package spectrum_bridge

import "time"

// ConnectionState tracks the transport lifecycle. Exactly one transport is
// active per session and every teardown path ends in Disconnected.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Open
	Closing
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	}
	return "UNKNOWN"
}

// SweepConfig is the session-owned sweep configuration. It is updated by a
// decoded config frame or a set-frequency command and read when assembling
// the frequency axis of a sweep.
type SweepConfig struct {
	StartFreqMHz float64 `json:"start_freq_mhz"`
	EndFreqMHz   float64 `json:"end_freq_mhz"`
	StepCount    int     `json:"step_count"`
	RBWKHz       float64 `json:"rbw_khz"`
}

// DefaultSweepConfig matches the RF Explorer 6G power-on span.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		StartFreqMHz: 1990.0,
		EndFreqMHz:   6000.0,
		StepCount:    112,
		RBWKHz:       600.0,
	}
}

// SpectrumSample is one (frequency, amplitude) point of a sweep.
type SpectrumSample struct {
	FrequencyMHz float64 `json:"frequency"`
	AmplitudeDBm float64 `json:"amplitude"`
}

// SpectrumSnapshot is produced once per decoded sweep. Samples, MaxHold and
// Average always carry exactly stepCount points in ascending frequency
// order; Peaks holds at most five entries sorted by descending amplitude.
type SpectrumSnapshot struct {
	Samples   []SpectrumSample `json:"samples"`
	MaxHold   []SpectrumSample `json:"max_hold,omitempty"`
	Average   []SpectrumSample `json:"average,omitempty"`
	Peaks     []SpectrumSample `json:"peaks"`
	Config    SweepConfig      `json:"config"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventKind classifies a threshold event.
type EventKind string

const (
	EventCritical EventKind = "CRITICAL"
	EventWarning  EventKind = "WARNING"
)

// LogEvent is one append-only threshold-event entry. The log keeps the 500
// most recent entries; older entries are evicted first.
type LogEvent struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Kind         EventKind `json:"kind"`
	FrequencyMHz float64   `json:"frequency_mhz"`
	AmplitudeDBm float64   `json:"amplitude_dbm"`
	Message      string    `json:"message"`
}

// MaxLogEvents caps the event log, oldest evicted first.
const MaxLogEvents = 500

// DeltaBaseline is the reference sweep that sparse updates are computed
// against. It is replaced on a refresh interval or on a span change.
type DeltaBaseline struct {
	Samples    []SpectrumSample `json:"samples"`
	CapturedAt time.Time        `json:"captured_at"`
}

// DeltaPoint is one changed sample in a sparse update. The frequency is
// included so clients can validate the index against their baseline.
type DeltaPoint struct {
	Index        int     `json:"index"`
	FrequencyMHz float64 `json:"frequency"`
	AmplitudeDBm float64 `json:"amplitude"`
}

// DeltaUpdate is either a full baseline refresh or the sparse set of points
// that moved more than the configured threshold since the baseline.
type DeltaUpdate struct {
	Full             bool             `json:"full"`
	Samples          []SpectrumSample `json:"samples,omitempty"`
	Deltas           []DeltaPoint     `json:"deltas,omitempty"`
	BaselineAgeSec   float64          `json:"baseline_age_sec,omitempty"`
	CompressionRatio float64          `json:"compression_ratio"`
	Timestamp        time.Time        `json:"timestamp"`
}
