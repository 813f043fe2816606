package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Device actions.
const (
	ActionRegister      = "Register"
	ActionHeartbeat     = "Heartbeat"
	ActionVoltageSample = "VoltageSample"
)

// Error codes carried in error frames.
const (
	CodeFormatViolation   = "FormatViolation"
	CodeUnsupportedAction = "UnsupportedAction"
	CodeInvalidInput      = "InvalidInput"
	CodeNotFound          = "NotFound"
	CodeTimeout           = "Timeout"
	CodeUnavailable       = "Unavailable"
	CodeInternalError     = "InternalError"
)

// Frame is a request sent by a device.
type Frame struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FrameError describes a failed request.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type replyFrame struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *FrameError     `json:"error,omitempty"`
}

// ParseFrame decodes a request frame.
func ParseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("gateway: decode frame: %w", err)
	}
	frame.Action = strings.TrimSpace(frame.Action)
	if frame.Action == "" {
		return &frame, errors.New("gateway: frame action is required")
	}
	return &frame, nil
}

// BuildResult encodes a successful reply.
func BuildResult(id string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(replyFrame{ID: id, Result: body})
}

// BuildError encodes an error reply.
func BuildError(id, code, message string) ([]byte, error) {
	return json.Marshal(replyFrame{ID: id, Error: &FrameError{Code: code, Message: message}})
}
