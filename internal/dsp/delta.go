package dsp

import (
	"math"
	"time"

	sb "spectrum_bridge"
)

// Delta-encoding defaults, for bandwidth-constrained remote sessions.
const (
	DefaultDeltaThresholdDB = 1.0
	DefaultBaselineRefresh  = 60 * time.Second
)

// DeltaEncoder maintains a baseline sweep and reduces each snapshot to the
// sparse set of points that moved more than the threshold since that
// baseline. A full refresh is emitted periodically, on span change, and on
// explicit reset so receivers can resynchronize.
type DeltaEncoder struct {
	thresholdDB  float64
	refreshEvery time.Duration
	baseline     sb.DeltaBaseline
}

func NewDeltaEncoder(thresholdDB float64, refreshEvery time.Duration) *DeltaEncoder {
	if thresholdDB <= 0 {
		thresholdDB = DefaultDeltaThresholdDB
	}
	if refreshEvery <= 0 {
		refreshEvery = DefaultBaselineRefresh
	}
	return &DeltaEncoder{
		thresholdDB:  thresholdDB,
		refreshEvery: refreshEvery,
	}
}

// SetThreshold adjusts the change threshold in dB; non-positive values
// restore the default.
func (e *DeltaEncoder) SetThreshold(db float64) {
	if db <= 0 {
		db = DefaultDeltaThresholdDB
	}
	e.thresholdDB = db
}

// Reset drops the baseline; the next Encode emits a full refresh.
func (e *DeltaEncoder) Reset() {
	e.baseline = sb.DeltaBaseline{}
}

// spanChanged reports a retuned frequency axis. Both slices are the same
// length when this is called; the endpoints pin the axis.
func spanChanged(baseline, samples []sb.SpectrumSample) bool {
	if len(samples) == 0 {
		return false
	}
	last := len(samples) - 1
	return baseline[0].FrequencyMHz != samples[0].FrequencyMHz ||
		baseline[last].FrequencyMHz != samples[last].FrequencyMHz
}

// Encode reduces one sweep against the baseline. Changed points also update
// the baseline so deltas stay relative to what the receiver last saw.
func (e *DeltaEncoder) Encode(samples []sb.SpectrumSample, now time.Time) sb.DeltaUpdate {
	if e.baseline.Samples == nil ||
		len(e.baseline.Samples) != len(samples) ||
		spanChanged(e.baseline.Samples, samples) ||
		now.Sub(e.baseline.CapturedAt) > e.refreshEvery {
		e.baseline = sb.DeltaBaseline{
			Samples:    append([]sb.SpectrumSample(nil), samples...),
			CapturedAt: now,
		}
		return sb.DeltaUpdate{
			Full:      true,
			Samples:   append([]sb.SpectrumSample(nil), samples...),
			Timestamp: now,
		}
	}

	var deltas []sb.DeltaPoint
	for i, s := range samples {
		if math.Abs(s.AmplitudeDBm-e.baseline.Samples[i].AmplitudeDBm) > e.thresholdDB {
			deltas = append(deltas, sb.DeltaPoint{
				Index:        i,
				FrequencyMHz: s.FrequencyMHz,
				AmplitudeDBm: s.AmplitudeDBm,
			})
			e.baseline.Samples[i] = s
		}
	}

	ratio := 1.0
	if len(samples) > 0 {
		ratio = 1.0 - float64(len(deltas))/float64(len(samples))
	}
	return sb.DeltaUpdate{
		Deltas:           deltas,
		BaselineAgeSec:   now.Sub(e.baseline.CapturedAt).Seconds(),
		CompressionRatio: ratio,
		Timestamp:        now,
	}
}
