package service

import (
	"context"
	"sync"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/logger"
	"spectrum_bridge/internal/repository"
	"spectrum_bridge/internal/session"
)

// subscriberBufSize bounds each websocket subscriber's queue. The stream
// itself never drops snapshots; a subscriber that cannot keep up misses
// bursts and resynchronizes from the next update it does receive.
const subscriberBufSize = 32

// PipelineService is the bridge between the processing context and the
// interactive surface: it consumes the session's ordered event stream,
// records threshold events (ring + sqlite), persists config changes and
// fans events out to subscribers.
type PipelineService struct {
	sess       SessionController
	eventRepo  repository.EventRepo
	configRepo repository.ConfigRepo
	log        *logger.Logger

	mu     sync.Mutex
	subs   map[int]chan session.Event
	nextID int
	ring   []sb.LogEvent
}

func NewPipelineService(sess SessionController, eventRepo repository.EventRepo, configRepo repository.ConfigRepo, log *logger.Logger) *PipelineService {
	return &PipelineService{
		sess:       sess,
		eventRepo:  eventRepo,
		configRepo: configRepo,
		log:        log,
		subs:       make(map[int]chan session.Event),
	}
}

// Run consumes session events until the context is cancelled or the
// session closes its stream.
func (p *PipelineService) Run(ctx context.Context) {
	events := p.sess.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handle(ctx, ev)
		}
	}
}

func (p *PipelineService) handle(ctx context.Context, ev session.Event) {
	switch ev := ev.(type) {
	case session.AlertsEvent:
		for _, e := range ev.Events {
			p.record(ctx, e)
		}
	case session.ConfigEvent:
		if err := p.configRepo.Save(ctx, ev.Config); err != nil && p.log != nil {
			p.log.Warnw("config_persist_failed", "err", err)
		}
	case session.ErrorEvent:
		if p.log != nil {
			p.log.Errorw("session_error", "err", ev.Err)
		}
	case session.ConnectionEvent:
		if p.log != nil {
			p.log.Infow("connection_state", "state", ev.State.String())
		}
	}
	p.broadcast(ev)
}

// record appends to the in-memory ring (capped, oldest evicted) and
// best-effort persists; a storage error must not stall the pipeline.
func (p *PipelineService) record(ctx context.Context, e sb.LogEvent) {
	p.mu.Lock()
	p.ring = append(p.ring, e)
	if len(p.ring) > sb.MaxLogEvents {
		p.ring = p.ring[len(p.ring)-sb.MaxLogEvents:]
	}
	p.mu.Unlock()

	if err := p.eventRepo.Append(ctx, e); err != nil && p.log != nil {
		p.log.Warnw("event_persist_failed", "err", err, "event_id", e.ID)
	}
}

// RecentEvents returns a copy of the in-memory ring, oldest first.
func (p *PipelineService) RecentEvents() []sb.LogEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sb.LogEvent(nil), p.ring...)
}

// Subscribe registers a fan-out channel for the websocket layer.
func (p *PipelineService) Subscribe() (int, <-chan session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan session.Event, subscriberBufSize)
	p.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (p *PipelineService) Unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.subs[id]; ok {
		delete(p.subs, id)
		close(ch)
	}
}

// broadcast fans an event out without blocking the pipeline; rendering may
// coalesce rapid bursts.
func (p *PipelineService) broadcast(ev session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
