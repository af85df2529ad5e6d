package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sb "spectrum_bridge"
)

type ConfigSQLite struct {
	db *sql.DB
}

func NewConfigSQLite(db *sql.DB) *ConfigSQLite {
	return &ConfigSQLite{db: db}
}

var _ ConfigRepo = (*ConfigSQLite)(nil)

// The table holds exactly one row; the schema enforces id=1.
const (
	sweepConfigRowID = 1

	upsertConfigSQL = `
		INSERT INTO sweep_config (id, start_mhz, end_mhz, step_count, rbw_khz, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_mhz=excluded.start_mhz,
			end_mhz=excluded.end_mhz,
			step_count=excluded.step_count,
			rbw_khz=excluded.rbw_khz,
			updated_at=excluded.updated_at
	`

	selectConfigSQL = `
		SELECT start_mhz, end_mhz, step_count, rbw_khz
		FROM sweep_config WHERE id=?
	`
)

// Save upserts the single sweep_config row.
func (r *ConfigSQLite) Save(ctx context.Context, cfg sb.SweepConfig) error {
	_, err := r.db.ExecContext(ctx, upsertConfigSQL,
		sweepConfigRowID,
		cfg.StartFreqMHz,
		cfg.EndFreqMHz,
		cfg.StepCount,
		cfg.RBWKHz,
		time.Now().UTC(),
	)
	return err
}

// Load fetches the persisted sweep configuration. A zero config is
// returned when nothing has been persisted yet.
func (r *ConfigSQLite) Load(ctx context.Context) (sb.SweepConfig, error) {
	row := r.db.QueryRowContext(ctx, selectConfigSQL, sweepConfigRowID)

	var cfg sb.SweepConfig
	if err := row.Scan(&cfg.StartFreqMHz, &cfg.EndFreqMHz, &cfg.StepCount, &cfg.RBWKHz); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sb.SweepConfig{}, nil // nothing persisted yet
		}
		return sb.SweepConfig{}, err
	}
	return cfg, nil
}
