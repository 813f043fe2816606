package repository

import (
	"context"
	"database/sql"
	"errors"

	"voltwatch/backend/services/telemetry-service/internal/models"
)

// DeviceRepository persists device records in PostgreSQL.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository returns repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// GetDevice fetches a device by id.
func (r *DeviceRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	const query = `
		SELECT device_id, name, location, status, last_seen, created_at, updated_at
		FROM devices
		WHERE device_id = $1
	`
	var d models.Device
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID,
		&d.Name,
		&d.Location,
		&d.Status,
		&d.LastSeen,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListDevices returns all devices ordered by id.
func (r *DeviceRepository) ListDevices(ctx context.Context) ([]models.Device, error) {
	const query = `
		SELECT device_id, name, location, status, last_seen, created_at, updated_at
		FROM devices
		ORDER BY device_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(
			&d.DeviceID,
			&d.Name,
			&d.Location,
			&d.Status,
			&d.LastSeen,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

// SaveDevice inserts or fully replaces the mutable columns of a device.
func (r *DeviceRepository) SaveDevice(ctx context.Context, device *models.Device) error {
	const query = `
		INSERT INTO devices (device_id, name, location, status, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			status = EXCLUDED.status,
			last_seen = EXCLUDED.last_seen,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		device.DeviceID,
		device.Name,
		device.Location,
		device.Status,
		device.LastSeen,
	).Scan(&device.CreatedAt, &device.UpdatedAt)
}
