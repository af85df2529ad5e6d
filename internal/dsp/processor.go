package dsp

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	sb "spectrum_bridge"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// ----------- Processing constants -----------
const (
	// Exponential moving average weights, ~10-sweep effective window.
	// Chosen over a sliding-window buffer for O(1) memory per bin.
	averageDecay = 0.9
	averageGain  = 0.1

	// Local maxima below this floor are ignored so noisy bands cannot
	// flood the peak list.
	peakFloorDBm = -70.0
	maxPeaks     = 5

	// Warning-threshold crossings are emitted with this probability. This
	// is deliberate rate limiting, not debouncing: sustained marginal
	// signals produce a trickle of events instead of a flood.
	warningSampleRate = 0.05
)

// Default alert thresholds; overridable from configuration.
const (
	DefaultCriticalDBm = -40.0
	DefaultWarningDBm  = -60.0
)

// Thresholds configures the amplitude levels that produce log events.
type Thresholds struct {
	CriticalDBm float64
	WarningDBm  float64
}

// Processor maintains the derived views over successive sweeps: current
// trace, max-hold, moving average, peaks and threshold events. It has a
// single writer (the session loop) and needs no internal locking; every
// snapshot carries freshly allocated arrays so aggregate state is always
// replaced whole, never mutated in place by readers.
type Processor struct {
	thresholds Thresholds

	maxHold []float64
	average []float64

	// uniform drives warning-event sampling; injectable for deterministic
	// tests.
	uniform func() float64
}

func NewProcessor(t Thresholds) *Processor {
	return &Processor{
		thresholds: t,
		uniform:    rand.Float64,
	}
}

// Ingest consumes one assembled sweep and returns the refreshed snapshot
// plus any threshold events. Max-hold and average carry forward pointwise
// across sweeps of the same length and reset when the step count changes,
// so aggregates are never mixed across differing spans.
func (p *Processor) Ingest(samples []sb.SpectrumSample, cfg sb.SweepConfig, now time.Time) (sb.SpectrumSnapshot, []sb.LogEvent) {
	n := len(samples)
	amps := make([]float64, n)
	for i, s := range samples {
		amps[i] = s.AmplitudeDBm
	}

	if len(p.maxHold) != n {
		p.maxHold = nil
		p.average = nil
	}

	if p.maxHold == nil {
		p.maxHold = append([]float64(nil), amps...)
	} else {
		for i, a := range amps {
			if a > p.maxHold[i] {
				p.maxHold[i] = a
			}
		}
	}

	if p.average == nil {
		p.average = append([]float64(nil), amps...)
	} else {
		floats.Scale(averageDecay, p.average)
		floats.AddScaled(p.average, averageGain, amps)
	}

	snap := sb.SpectrumSnapshot{
		Samples:   append([]sb.SpectrumSample(nil), samples...),
		MaxHold:   withFrequencies(samples, p.maxHold),
		Average:   withFrequencies(samples, p.average),
		Peaks:     findPeaks(samples),
		Config:    cfg,
		Timestamp: now,
	}
	return snap, p.thresholdEvents(samples, now)
}

// Reset clears max-hold and average; the next sweep starts both from its
// own values.
func (p *Processor) Reset() {
	p.maxHold = nil
	p.average = nil
}

// withFrequencies pairs an aggregate amplitude array with the frequency
// axis of the current sweep, returning a fresh slice.
func withFrequencies(samples []sb.SpectrumSample, amps []float64) []sb.SpectrumSample {
	out := make([]sb.SpectrumSample, len(samples))
	for i := range samples {
		out[i] = sb.SpectrumSample{
			FrequencyMHz: samples[i].FrequencyMHz,
			AmplitudeDBm: amps[i],
		}
	}
	return out
}

// findPeaks returns local maxima above the fixed floor, strongest first,
// at most maxPeaks entries.
func findPeaks(samples []sb.SpectrumSample) []sb.SpectrumSample {
	var peaks []sb.SpectrumSample
	for i := 1; i < len(samples)-1; i++ {
		a := samples[i].AmplitudeDBm
		if a <= peakFloorDBm {
			continue
		}
		if a > samples[i-1].AmplitudeDBm && a > samples[i+1].AmplitudeDBm {
			peaks = append(peaks, samples[i])
		}
	}
	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].AmplitudeDBm > peaks[j].AmplitudeDBm
	})
	if len(peaks) > maxPeaks {
		peaks = peaks[:maxPeaks]
	}
	return peaks
}

// thresholdEvents compares the sweep against the configured thresholds.
// Critical crossings always emit; warning crossings are sampled.
func (p *Processor) thresholdEvents(samples []sb.SpectrumSample, now time.Time) []sb.LogEvent {
	var events []sb.LogEvent
	for _, s := range samples {
		switch {
		case s.AmplitudeDBm > p.thresholds.CriticalDBm:
			events = append(events, newEvent(sb.EventCritical, s, now,
				fmt.Sprintf("signal %.1f dBm above critical threshold %.1f dBm", s.AmplitudeDBm, p.thresholds.CriticalDBm)))
		case s.AmplitudeDBm > p.thresholds.WarningDBm:
			if p.uniform() < warningSampleRate {
				events = append(events, newEvent(sb.EventWarning, s, now,
					fmt.Sprintf("signal %.1f dBm above warning threshold %.1f dBm", s.AmplitudeDBm, p.thresholds.WarningDBm)))
			}
		}
	}
	return events
}

func newEvent(kind sb.EventKind, s sb.SpectrumSample, now time.Time, msg string) sb.LogEvent {
	return sb.LogEvent{
		ID:           uuid.NewString(),
		Timestamp:    now,
		Kind:         kind,
		FrequencyMHz: s.FrequencyMHz,
		AmplitudeDBm: s.AmplitudeDBm,
		Message:      msg,
	}
}
