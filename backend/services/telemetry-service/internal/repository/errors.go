package repository

import "errors"

// ErrDeviceNotFound represents a missing device row.
var ErrDeviceNotFound = errors.New("device not found")
