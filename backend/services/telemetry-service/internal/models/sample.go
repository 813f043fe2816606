package models

import "time"

// VoltageSample is one classified voltage reading.
type VoltageSample struct {
	ID        int64     `db:"id" json:"id"`
	DeviceID  string    `db:"device_id" json:"deviceId"`
	Voltage   float64   `db:"voltage" json:"voltage"`
	IsHigh    bool      `db:"is_high" json:"isHigh"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// Before reports whether s sorts before other: older timestamp first, insertion id breaks ties.
func (s VoltageSample) Before(other VoltageSample) bool {
	if s.Timestamp.Equal(other.Timestamp) {
		return s.ID < other.ID
	}
	return s.Timestamp.Before(other.Timestamp)
}

// Summary aggregates a device's samples.
type Summary struct {
	Count          int64   `json:"count"`
	AverageVoltage float64 `json:"averageVoltage"`
	HighCount      int64   `json:"highCount"`
}
