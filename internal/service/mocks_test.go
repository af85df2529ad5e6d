package service

import (
	"context"
	"sync"
	"time"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/session"
)

// stubSession records control calls and serves canned state.
type stubSession struct {
	mu    sync.Mutex
	calls []string

	config    sb.SweepConfig
	state     sb.ConnectionState
	latest    sb.SpectrumSnapshot
	hasLatest bool

	rangeErr error
	sendErr  error

	events chan session.Event
}

func newStubSession() *stubSession {
	return &stubSession{
		config: sb.DefaultSweepConfig(),
		state:  sb.Open,
		events: make(chan session.Event, 16),
	}
}

func (s *stubSession) recordCall(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *stubSession) callList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubSession) RequestConfig() error {
	s.recordCall("RequestConfig")
	return s.sendErr
}

func (s *stubSession) StartSweep() error {
	s.recordCall("StartSweep")
	return s.sendErr
}

func (s *stubSession) StopSweep() error {
	s.recordCall("StopSweep")
	return s.sendErr
}

func (s *stubSession) SetFrequencyRange(startMHz, endMHz float64) error {
	s.recordCall("SetFrequencyRange")
	if s.rangeErr != nil {
		return s.rangeErr
	}
	s.mu.Lock()
	s.config.StartFreqMHz = startMHz
	s.config.EndFreqMHz = endMHz
	s.mu.Unlock()
	return nil
}

func (s *stubSession) ResetAggregates() { s.recordCall("ResetAggregates") }

func (s *stubSession) EnableDeltaEncoding(enabled bool, thresholdDB float64) error {
	s.recordCall("EnableDeltaEncoding")
	return nil
}

func (s *stubSession) Config() sb.SweepConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *stubSession) Latest() (sb.SpectrumSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

func (s *stubSession) State() sb.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubSession) Events() <-chan session.Event { return s.events }

// stubConfigRepo keeps the last saved config in memory.
type stubConfigRepo struct {
	mu      sync.Mutex
	saved   []sb.SweepConfig
	loaded  sb.SweepConfig
	saveErr error
}

func (r *stubConfigRepo) Save(ctx context.Context, cfg sb.SweepConfig) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, cfg)
	return nil
}

func (r *stubConfigRepo) Load(ctx context.Context) (sb.SweepConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded, nil
}

func (r *stubConfigRepo) lastSaved() (sb.SweepConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saved) == 0 {
		return sb.SweepConfig{}, false
	}
	return r.saved[len(r.saved)-1], true
}

// stubEventRepo records appended events and serves a canned list.
type stubEventRepo struct {
	mu        sync.Mutex
	appended  []sb.LogEvent
	listed    []sb.LogEvent
	appendErr error

	gotFrom time.Time
	gotTo   time.Time
	gotKind string
}

func (r *stubEventRepo) Append(ctx context.Context, e sb.LogEvent) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, e)
	return nil
}

func (r *stubEventRepo) List(ctx context.Context, from, to time.Time, kind string) ([]sb.LogEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gotFrom, r.gotTo, r.gotKind = from, to, kind
	return r.listed, nil
}

func (r *stubEventRepo) appendedEvents() []sb.LogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sb.LogEvent(nil), r.appended...)
}
