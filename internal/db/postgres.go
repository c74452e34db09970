package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS appointments (
    id             UUID PRIMARY KEY,
    patient_name   TEXT NOT NULL,
    patient_dob    TEXT NOT NULL DEFAULT '',
    patient_phone  TEXT NOT NULL DEFAULT '',
    provider       TEXT NOT NULL,
    appt_type      TEXT NOT NULL DEFAULT '',
    start_time     TIMESTAMPTZ NOT NULL,
    end_time       TIMESTAMPTZ NOT NULL,
    notes          TEXT NOT NULL DEFAULT '',
    new_patient    BOOLEAN NOT NULL DEFAULT FALSE,
    status         TEXT NOT NULL,
    cancel_reason  TEXT,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_provider_start
    ON appointments (provider, start_time) WHERE status = 'booked';
CREATE INDEX IF NOT EXISTS idx_appointments_patient
    ON appointments (lower(patient_name));

CREATE TABLE IF NOT EXISTS waitlist_entries (
    id               UUID PRIMARY KEY,
    patient_name     TEXT NOT NULL,
    patient_dob      TEXT NOT NULL DEFAULT '',
    patient_phone    TEXT NOT NULL DEFAULT '',
    provider         TEXT,
    desired_start    TIMESTAMPTZ,
    desired_end      TIMESTAMPTZ,
    appt_type        TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    offered_provider TEXT,
    offered_start    TIMESTAMPTZ,
    offered_end      TIMESTAMPTZ,
    offer_expires_at TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_waitlist_status_created
    ON waitlist_entries (status, created_at);

CREATE TABLE IF NOT EXISTS messages (
    id            UUID PRIMARY KEY,
    caller_name   TEXT NOT NULL DEFAULT '',
    caller_phone  TEXT NOT NULL DEFAULT '',
    body          TEXT NOT NULL,
    kind          TEXT NOT NULL,
    recording_ref TEXT,
    created_at    TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the schema if it does not exist. Statements are
// idempotent so every binary can run this on startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
