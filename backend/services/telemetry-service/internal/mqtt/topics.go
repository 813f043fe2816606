package mqtt

import (
	"errors"
	"fmt"
	"strings"

	"voltwatch/backend/services/telemetry-service/internal/gateway"
)

// Topic suffixes published by devices.
const (
	SuffixRegister  = "register"
	SuffixHeartbeat = "heartbeat"
	SuffixVoltage   = "voltage"
)

// ErrUnknownTopic is returned by ParseTopic for topics outside the device hierarchy.
var ErrUnknownTopic = errors.New("mqtt: unknown topic")

var suffixActions = map[string]string{
	SuffixRegister:  gateway.ActionRegister,
	SuffixHeartbeat: gateway.ActionHeartbeat,
	SuffixVoltage:   gateway.ActionVoltageSample,
}

// Topics builds device topics under a prefix, e.g. voltwatch/devices/DEV001/voltage.
type Topics struct {
	Prefix string
}

// Register returns the registration topic for deviceID.
func (t Topics) Register(deviceID string) string {
	return t.device(deviceID, SuffixRegister)
}

// Heartbeat returns the heartbeat topic for deviceID.
func (t Topics) Heartbeat(deviceID string) string {
	return t.device(deviceID, SuffixHeartbeat)
}

// Voltage returns the voltage topic for deviceID.
func (t Topics) Voltage(deviceID string) string {
	return t.device(deviceID, SuffixVoltage)
}

// Subscriptions returns the wildcard filters covering every device.
func (t Topics) Subscriptions() []string {
	return []string{
		t.device("+", SuffixRegister),
		t.device("+", SuffixHeartbeat),
		t.device("+", SuffixVoltage),
	}
}

func (t Topics) device(deviceID, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(t.Prefix, "/"), deviceID, suffix)
}

// Parse splits a device topic into the device id and gateway action.
func (t Topics) Parse(topic string) (deviceID, action string, err error) {
	prefix := strings.TrimSuffix(t.Prefix, "/") + "/"
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	action, ok = suffixActions[parts[1]]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return parts[0], action, nil
}
