package repository

import (
	"context"
	"database/sql"

	"voltwatch/backend/services/telemetry-service/internal/models"
)

// SampleRepository persists voltage samples in PostgreSQL.
type SampleRepository struct {
	db *sql.DB
}

// NewSampleRepository returns repository.
func NewSampleRepository(db *sql.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

// InsertSample stores a sample and fills its id.
func (r *SampleRepository) InsertSample(ctx context.Context, sample *models.VoltageSample) error {
	const query = `
		INSERT INTO voltage_logs (device_id, voltage, is_high, "timestamp")
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		sample.DeviceID,
		sample.Voltage,
		sample.IsHigh,
		sample.Timestamp,
	).Scan(&sample.ID)
}

// RecentSamples returns samples newest first, ties broken by descending id.
func (r *SampleRepository) RecentSamples(ctx context.Context, deviceID string, limit, offset int) ([]models.VoltageSample, error) {
	const query = `
		SELECT id, device_id, voltage, is_high, "timestamp"
		FROM voltage_logs
		WHERE device_id = $1
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, deviceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]models.VoltageSample, 0, limit)
	for rows.Next() {
		var s models.VoltageSample
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Voltage, &s.IsHigh, &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// SummarizeSamples aggregates the whole history when window is 0, otherwise the newest window samples.
func (r *SampleRepository) SummarizeSamples(ctx context.Context, deviceID string, window int) (models.Summary, error) {
	const allTime = `
		SELECT COUNT(*), COALESCE(AVG(voltage), 0), COUNT(*) FILTER (WHERE is_high)
		FROM voltage_logs
		WHERE device_id = $1
	`
	const lastN = `
		SELECT COUNT(*), COALESCE(AVG(voltage), 0), COUNT(*) FILTER (WHERE is_high)
		FROM (
			SELECT voltage, is_high
			FROM voltage_logs
			WHERE device_id = $1
			ORDER BY "timestamp" DESC, id DESC
			LIMIT $2
		) recent
	`
	var (
		summary models.Summary
		row     *sql.Row
	)
	if window > 0 {
		row = r.db.QueryRowContext(ctx, lastN, deviceID, window)
	} else {
		row = r.db.QueryRowContext(ctx, allTime, deviceID)
	}
	if err := row.Scan(&summary.Count, &summary.AverageVoltage, &summary.HighCount); err != nil {
		return models.Summary{}, err
	}
	return summary, nil
}

// SnapshotSamples reads the newest sample and the all-time summary in one statement, so both
// come from the same MVCC snapshot.
func (r *SampleRepository) SnapshotSamples(ctx context.Context, deviceID string) (*models.VoltageSample, models.Summary, error) {
	const query = `
		SELECT s.cnt, s.avg, s.high, l.id, l.voltage, l.is_high, l."timestamp"
		FROM (
			SELECT COUNT(*) AS cnt, COALESCE(AVG(voltage), 0) AS avg, COUNT(*) FILTER (WHERE is_high) AS high
			FROM voltage_logs
			WHERE device_id = $1
		) s
		LEFT JOIN LATERAL (
			SELECT id, voltage, is_high, "timestamp"
			FROM voltage_logs
			WHERE device_id = $1
			ORDER BY "timestamp" DESC, id DESC
			LIMIT 1
		) l ON true
	`
	var (
		summary models.Summary
		id      sql.NullInt64
		voltage sql.NullFloat64
		isHigh  sql.NullBool
		ts      sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&summary.Count, &summary.AverageVoltage, &summary.HighCount,
		&id, &voltage, &isHigh, &ts,
	)
	if err != nil {
		return nil, models.Summary{}, err
	}
	if !id.Valid {
		return nil, summary, nil
	}
	return &models.VoltageSample{
		ID:        id.Int64,
		DeviceID:  deviceID,
		Voltage:   voltage.Float64,
		IsHigh:    isHigh.Bool,
		Timestamp: ts.Time,
	}, summary, nil
}
