package models

import (
	"errors"
	"strings"
	"time"
)

// DeviceStatus is the lifecycle state of a device.
type DeviceStatus string

// Device statuses.
const (
	StatusActive   DeviceStatus = "active"
	StatusInactive DeviceStatus = "inactive"
)

// ErrUnknownStatus is returned by ParseStatus for values outside the enum.
var ErrUnknownStatus = errors.New("unknown device status")

// ParseStatus converts user input into a DeviceStatus. Matching is case-insensitive.
func ParseStatus(raw string) (DeviceStatus, error) {
	switch DeviceStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", ErrUnknownStatus
	}
}

// Device represents a registered sensor endpoint.
type Device struct {
	DeviceID  string       `db:"device_id" json:"deviceId"`
	Name      string       `db:"name" json:"name"`
	Location  string       `db:"location" json:"location"`
	Status    DeviceStatus `db:"status" json:"status"`
	LastSeen  time.Time    `db:"last_seen" json:"lastSeen"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `db:"updated_at" json:"updatedAt"`
}
