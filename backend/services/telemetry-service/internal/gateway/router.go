package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/metrics"
	"voltwatch/backend/services/telemetry-service/internal/service"
)

// ErrUnsupportedAction is returned by Route for actions without a handler.
var ErrUnsupportedAction = errors.New("gateway: unsupported action")

// HandlerFunc processes a payload on behalf of deviceID and returns the reply body.
type HandlerFunc func(ctx context.Context, deviceID string, payload json.RawMessage) (interface{}, error)

// Router dispatches device actions to handlers.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches handler to action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// Route executes the handler for action.
func (r *Router) Route(ctx context.Context, deviceID, action string, payload json.RawMessage) (interface{}, error) {
	handler, ok := r.handlers[action]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedAction, action)
	}
	return handler(ctx, deviceID, payload)
}

// Processor ties together parsing, routing and reply encoding for framed transports.
type Processor struct {
	router    *Router
	transport string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewProcessor builds Processor. transport labels metrics and logs.
func NewProcessor(router *Router, transport string, m *metrics.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		router:    router,
		transport: transport,
		logger:    logging.OrNop(logger),
		metrics:   m,
	}
}

// Process handles a raw frame and returns the reply frame. Handler failures become error frames.
func (p *Processor) Process(ctx context.Context, deviceID string, raw []byte) ([]byte, error) {
	frame, err := ParseFrame(raw)
	if err != nil {
		p.metrics.TransportMessage(p.transport, "malformed")
		id := ""
		if frame != nil {
			id = frame.ID
		}
		return BuildError(id, CodeFormatViolation, err.Error())
	}

	result, err := p.router.Route(ctx, deviceID, frame.Action, frame.Payload)
	if err != nil {
		code := ErrorCode(err)
		p.metrics.TransportMessage(p.transport, "error")
		p.logger.Warn("device message failed",
			zap.String("transport", p.transport),
			zap.String("device_id", deviceID),
			zap.String("action", frame.Action),
			zap.String("code", code),
			zap.Error(err),
		)
		return BuildError(frame.ID, code, err.Error())
	}

	p.metrics.TransportMessage(p.transport, "ok")
	return BuildResult(frame.ID, result)
}

// ErrorCode maps handler errors onto frame error codes.
func ErrorCode(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, ErrUnsupportedAction):
		return CodeUnsupportedAction
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return CodeFormatViolation
	case errors.Is(err, service.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, service.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, service.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, service.ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternalError
	}
}

// Decode convenience helper for handlers. An empty payload decodes to the zero value.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if len(payload) == 0 || string(payload) == "null" {
		return target, nil
	}
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, err
	}
	return target, nil
}
