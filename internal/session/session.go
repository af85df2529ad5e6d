package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/dsp"
	"spectrum_bridge/internal/logger"
	"spectrum_bridge/internal/protocol"
	"spectrum_bridge/internal/transport"
)

// Event is the tagged-union message crossing from the processing context to
// the interactive surface. The two sides share no mutable memory; snapshots
// are delivered in decode order and none are dropped.
type Event interface {
	event()
}

// SnapshotEvent carries one processed sweep.
type SnapshotEvent struct {
	Snapshot sb.SpectrumSnapshot
}

// AlertsEvent carries threshold events raised by one sweep.
type AlertsEvent struct {
	Events []sb.LogEvent
}

// ConnectionEvent reports a transport state transition.
type ConnectionEvent struct {
	State sb.ConnectionState
}

// ConfigEvent reports a sweep-configuration change decoded from the device.
type ConfigEvent struct {
	Config sb.SweepConfig
}

// ErrorEvent surfaces a transport failure. Frame-level decode failures are
// logged and skipped instead; one malformed frame never halts monitoring.
type ErrorEvent struct {
	Err error
}

func (SnapshotEvent) event()   {}
func (AlertsEvent) event()     {}
func (ConnectionEvent) event() {}
func (ConfigEvent) event()     {}
func (ErrorEvent) event()      {}

const (
	inboundBufSize = 256
	eventBufSize   = 64
)

// Options configures a session.
type Options struct {
	Config     sb.SweepConfig
	Thresholds dsp.Thresholds
	Log        *logger.Logger
}

// TransportFactory builds the session's transport around the session's
// callbacks, so the session stays the sole consumer of inbound traffic.
type TransportFactory func(transport.Callbacks) transport.Transport

// Session owns the processing context: one transport, one frame
// accumulator, the decoder/assembler and the spectrum processor. Its loop
// is single-threaded and run-to-completion per message, so pipeline state
// has exactly one writer and needs no locks.
type Session struct {
	tr   transport.Transport
	log  *logger.Logger
	acc  *protocol.Accumulator
	proc *dsp.Processor
	cfg  sb.SweepConfig // owned by the loop

	in   chan any
	out  chan Event
	quit chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	latest    atomic.Value // sb.SpectrumSnapshot
	curConfig atomic.Value // sb.SweepConfig

	// now is time.Now, injectable for tests.
	now func() time.Time
}

func New(factory TransportFactory, opts Options) *Session {
	s := &Session{
		log:  opts.Log,
		acc:  protocol.NewAccumulator(),
		proc: dsp.NewProcessor(opts.Thresholds),
		cfg:  opts.Config,
		in:   make(chan any, inboundBufSize),
		out:  make(chan Event, eventBufSize),
		quit: make(chan struct{}),
		now:  time.Now,
	}
	if s.cfg.StepCount == 0 {
		s.cfg = sb.DefaultSweepConfig()
	}
	s.curConfig.Store(s.cfg)
	s.tr = factory(transport.Callbacks{
		OnChunk:   s.enqueueChunk,
		OnState:   s.enqueueState,
		OnControl: s.enqueueControl,
		OnError:   s.enqueueError,
	})
	return s
}

// Open starts the processing loop and connects the transport. On connect
// failure the transport is back in Disconnected and Open may be retried.
func (s *Session) Open(ctx context.Context) error {
	s.startOnce.Do(func() { go s.run() })
	if err := s.tr.Connect(ctx); err != nil {
		return err
	}
	return nil
}

// Close disconnects the transport and stops the loop. Safe to call at any
// time, including mid-decode; the accumulator is cleared so no partial
// frame survives into a later session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.tr.Disconnect()
		close(s.quit)
	})
}

// Events is the ordered outbound stream for the interactive surface.
func (s *Session) Events() <-chan Event {
	return s.out
}

// State reports the transport lifecycle state.
func (s *Session) State() sb.ConnectionState {
	return s.tr.State()
}

// Config returns the current sweep configuration.
func (s *Session) Config() sb.SweepConfig {
	return s.curConfig.Load().(sb.SweepConfig)
}

// Latest returns the most recent snapshot, if any sweep has been decoded.
func (s *Session) Latest() (sb.SpectrumSnapshot, bool) {
	v := s.latest.Load()
	if v == nil {
		return sb.SpectrumSnapshot{}, false
	}
	return v.(sb.SpectrumSnapshot), true
}

// ----------- control operations -----------

// RequestConfig asks the device for its current configuration.
func (s *Session) RequestConfig() error {
	return s.tr.Send(protocol.RequestConfig())
}

// StartSweep puts the device into continuous sweep mode.
func (s *Session) StartSweep() error {
	return s.tr.Send(protocol.StartSweep())
}

// StopSweep holds the device.
func (s *Session) StopSweep() error {
	return s.tr.Send(protocol.StopSweep())
}

// SetFrequencyRange reconfigures the device span and updates the session
// config used to assemble subsequent sweeps.
func (s *Session) SetFrequencyRange(startMHz, endMHz float64) error {
	cmd, err := protocol.SetFrequencyRange(startMHz, endMHz)
	if err != nil {
		return err
	}
	if err := s.tr.Send(cmd); err != nil {
		return err
	}
	s.do(func() {
		s.cfg.StartFreqMHz = startMHz
		s.cfg.EndFreqMHz = endMHz
		s.publishConfig()
	})
	return nil
}

// ResetAggregates clears max-hold and the moving average.
func (s *Session) ResetAggregates() {
	s.do(s.proc.Reset)
}

// EnableDeltaEncoding forwards the sparse-update request on transports that
// support it (the remote socket session).
func (s *Session) EnableDeltaEncoding(enabled bool, thresholdDB float64) error {
	type deltaCapable interface {
		EnableDeltaEncoding(bool, float64) error
	}
	if dc, ok := s.tr.(deltaCapable); ok {
		return dc.EnableDeltaEncoding(enabled, thresholdDB)
	}
	return nil
}

// ----------- loop -----------

// do runs fn inside the loop, preserving the single-writer rule.
func (s *Session) do(fn func()) {
	select {
	case s.in <- fn:
	case <-s.quit:
	}
}

func (s *Session) enqueueChunk(chunk []byte) {
	select {
	case s.in <- chunk:
	case <-s.quit:
	}
}

func (s *Session) enqueueState(state sb.ConnectionState) {
	select {
	case s.in <- state:
	case <-s.quit:
	}
}

func (s *Session) enqueueControl(msg transport.ControlMessage) {
	select {
	case s.in <- msg:
	case <-s.quit:
	}
}

func (s *Session) enqueueError(err error) {
	select {
	case s.in <- err:
	case <-s.quit:
	}
}

func (s *Session) run() {
	defer close(s.out)
	for {
		select {
		case <-s.quit:
			s.acc.Reset()
			// Best-effort final state report; the channel is about to
			// close either way.
			select {
			case s.out <- ConnectionEvent{State: sb.Disconnected}:
			default:
			}
			return
		case m := <-s.in:
			switch m := m.(type) {
			case []byte:
				s.handleChunk(m)
			case sb.ConnectionState:
				if m == sb.Disconnected {
					s.acc.Reset()
				}
				s.emit(ConnectionEvent{State: m})
			case transport.ControlMessage:
				s.handleControl(m)
			case error:
				if s.log != nil {
					s.log.Errorw("transport_read_failed", "err", m)
				}
				s.emit(ErrorEvent{Err: m})
			case func():
				m()
			}
		}
	}
}

// emit delivers ev in order without dropping; shutdown unblocks it.
func (s *Session) emit(ev Event) {
	select {
	case s.out <- ev:
	case <-s.quit:
	}
}

func (s *Session) handleChunk(chunk []byte) {
	for _, frame := range s.acc.Feed(chunk) {
		msg, err := protocol.Decode(frame)
		if err != nil {
			// Frame already consumed; skip and continue.
			if s.log != nil {
				s.log.Warnw("frame_decode_failed", "err", err)
			}
			continue
		}
		switch msg := msg.(type) {
		case protocol.SweepFrame:
			s.ingest(protocol.Assemble(msg, s.cfg))
		case protocol.ConfigFrame:
			s.cfg.StartFreqMHz = msg.StartFreqMHz
			s.cfg.EndFreqMHz = msg.EndFreqMHz
			s.publishConfig()
			s.emit(ConfigEvent{Config: s.cfg})
		case protocol.TextResponse:
			if s.log != nil {
				s.log.Debugw("device_response", "text", msg.Text)
			}
		}
	}
}

// handleControl consumes the remote channel's JSON messages. The
// pre-decoded sweep path feeds the processor directly, bypassing the binary
// framer.
func (s *Session) handleControl(msg transport.ControlMessage) {
	switch msg.Type {
	case transport.MsgSweep:
		if msg.Config != nil {
			s.cfg = *msg.Config
			s.publishConfig()
		}
		if len(msg.Data) > 0 {
			s.ingest(msg.Data)
		}
	case transport.MsgConfig:
		if msg.Config != nil {
			s.cfg = *msg.Config
			s.publishConfig()
			s.emit(ConfigEvent{Config: s.cfg})
		}
	case transport.MsgConnection:
		if s.log != nil {
			s.log.Infow("remote_capabilities", "features", msg.Features)
		}
	case transport.MsgDeltaEncodingStatus:
		if s.log != nil && msg.Enabled != nil {
			s.log.Infow("delta_encoding_status", "enabled", *msg.Enabled)
		}
	}
}

func (s *Session) ingest(samples []sb.SpectrumSample) {
	if len(samples) == 0 {
		return
	}
	s.cfg.StepCount = len(samples)
	s.publishConfig()
	snap, events := s.proc.Ingest(samples, s.cfg, s.now())
	s.latest.Store(snap)
	s.emit(SnapshotEvent{Snapshot: snap})
	if len(events) > 0 {
		s.emit(AlertsEvent{Events: events})
	}
}

func (s *Session) publishConfig() {
	s.curConfig.Store(s.cfg)
}
