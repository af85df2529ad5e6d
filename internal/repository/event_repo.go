package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sb "spectrum_bridge"

	"github.com/google/uuid"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

// Sub-second precision matters here: threshold events arrive at sweep rate
// and eviction order follows occurred_at.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

const (
	insertEventSQL = `
		INSERT INTO spectrum_events (id, occurred_at, kind, frequency_mhz, amplitude_dbm, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	// Keeps the newest MaxLogEvents rows, evicting oldest first.
	trimEventsSQL = `
		DELETE FROM spectrum_events WHERE id NOT IN (
			SELECT id FROM spectrum_events ORDER BY occurred_at DESC LIMIT ?
		)
	`
)

// Append inserts a new event and trims the log to its cap. Missing ID or
// timestamp are filled in.
func (r *EventSQLite) Append(ctx context.Context, e sb.LogEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID,
		e.Timestamp.Format(sqliteTimeLayout),
		strings.ToUpper(strings.TrimSpace(string(e.Kind))),
		e.FrequencyMHz,
		e.AmplitudeDBm,
		e.Message,
	)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, trimEventsSQL, sb.MaxLogEvents)
	return err
}

// List returns events filtered by [from, to] (inclusive) and/or kind,
// ordered by occurred_at ascending.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, kind string) ([]sb.LogEvent, error) {
	var (
		conds []string
		args  []any
	)

	if !from.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, from.UTC().Format(sqliteTimeLayout))
	}
	if !to.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, to.UTC().Format(sqliteTimeLayout))
	}
	if kind = strings.ToUpper(strings.TrimSpace(kind)); kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}

	q := `SELECT id, occurred_at, kind, frequency_mhz, amplitude_dbm, message FROM spectrum_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]sb.LogEvent, 0, 64)
	for rows.Next() {
		var ev sb.LogEvent
		var kindStr string
		var occurredAt string
		if err := rows.Scan(&ev.ID, &occurredAt, &kindStr, &ev.FrequencyMHz, &ev.AmplitudeDBm, &ev.Message); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(sqliteTimeLayout, occurredAt); perr == nil {
			ev.Timestamp = ts.UTC()
		}
		ev.Kind = sb.EventKind(kindStr)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
