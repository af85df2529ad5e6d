package service

import (
	"context"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/logger"
	"spectrum_bridge/internal/repository"
	"spectrum_bridge/internal/session"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Sweep exposes device control: start/stop the continuous sweep and change
// the frequency span.
type Sweep interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetRange(ctx context.Context, p RangeParams) error
	RequestConfig(ctx context.Context) error
	ResetAggregates(ctx context.Context) error
}

// Monitoring exposes the read-only view: latest snapshot and session status.
type Monitoring interface {
	GetSnapshot(ctx context.Context) (sb.SpectrumSnapshot, error)
	GetStatus(ctx context.Context) (Status, error)
}

// EventLog exposes the append-only threshold-event log with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]sb.LogEvent, error)
	Recent(ctx context.Context) []sb.LogEvent
}

// Pipeline runs the background consumer of session events: it records
// threshold events, persists config changes and fans snapshots out to
// websocket subscribers. Stop via context cancellation for graceful
// shutdown.
type Pipeline interface {
	Run(ctx context.Context)
	Subscribe() (int, <-chan session.Event)
	Unsubscribe(id int)
}

// SessionController is the slice of the analyzer session the services use;
// *session.Session satisfies it and tests substitute stubs.
type SessionController interface {
	RequestConfig() error
	StartSweep() error
	StopSweep() error
	SetFrequencyRange(startMHz, endMHz float64) error
	ResetAggregates()
	EnableDeltaEncoding(enabled bool, thresholdDB float64) error
	Config() sb.SweepConfig
	Latest() (sb.SpectrumSnapshot, bool)
	State() sb.ConnectionState
	Events() <-chan session.Event
}

var _ SessionController = (*session.Session)(nil)

// Service aggregates all sub-services.
type Service struct {
	Sweep
	Monitoring
	EventLog
	Pipeline
	Authorization
}

// Deps carries everything the service layer is wired from.
type Deps struct {
	Repos      *repository.Repository
	Session    SessionController
	Log        *logger.Logger
	SigningKey string
}

func NewService(d Deps) *Service {
	pipeline := NewPipelineService(d.Session, d.Repos.EventRepo, d.Repos.ConfigRepo, d.Log)
	return &Service{
		Sweep:         NewSweepService(d.Session, d.Repos.ConfigRepo),
		Monitoring:    NewMonitoringService(d.Session),
		EventLog:      NewEventLogService(d.Repos.EventRepo, pipeline),
		Pipeline:      pipeline,
		Authorization: NewAuthService(d.Repos.Auth, d.SigningKey),
	}
}
