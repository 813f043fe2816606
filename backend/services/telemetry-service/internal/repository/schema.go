package repository

import (
	"context"
	"database/sql"

	libdb "voltwatch/backend/libs/db"
)

// schemaStatements creates the telemetry tables. voltage_logs deliberately has no foreign key
// to devices so that samples survive external device deletion.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_id  TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		location   TEXT NOT NULL,
		status     TEXT NOT NULL,
		last_seen  TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS voltage_logs (
		id         BIGSERIAL PRIMARY KEY,
		device_id  TEXT NOT NULL,
		voltage    DOUBLE PRECISION NOT NULL,
		is_high    BOOLEAN NOT NULL,
		"timestamp" TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS voltage_logs_device_ts_idx
		ON voltage_logs (device_id, "timestamp" DESC, id DESC)`,
}

// EnsureSchema creates tables and indexes when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return libdb.ExecStatements(ctx, db, schemaStatements...)
}
