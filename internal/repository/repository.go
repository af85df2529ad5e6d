package repository

import (
	"context"
	"database/sql"
	"time"

	sb "spectrum_bridge"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*sb.User, error)
}

// ConfigRepo persists the session sweep configuration (single row) so a
// restarted bridge resumes with the last known span.
type ConfigRepo interface {
	Save(ctx context.Context, cfg sb.SweepConfig) error
	Load(ctx context.Context) (sb.SweepConfig, error)
}

// EventRepo is the append-only threshold-event log, capped at the most
// recent 500 entries.
type EventRepo interface {
	Append(ctx context.Context, e sb.LogEvent) error
	List(ctx context.Context, from, to time.Time, kind string) ([]sb.LogEvent, error)
}

type Repository struct {
	ConfigRepo ConfigRepo
	EventRepo  EventRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		ConfigRepo: NewConfigSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserRepository(db),
	}
}
