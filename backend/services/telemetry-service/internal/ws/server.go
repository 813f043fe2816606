package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/models"
	"voltwatch/backend/services/telemetry-service/internal/service"
)

// ConnectFunc is invoked before the upgrade; a device connecting counts as a heartbeat.
type ConnectFunc func(ctx context.Context, deviceID string) (*models.Device, error)

// Server upgrades HTTP connections to device WebSockets.
type Server struct {
	baseCtx      context.Context
	manager      *Manager
	processor    MessageProcessor
	onConnect    ConnectFunc
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. Connections live until baseCtx is done or the peer leaves.
func NewServer(baseCtx context.Context, manager *Manager, processor MessageProcessor, onConnect ConnectFunc, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		baseCtx:      baseCtx,
		manager:      manager,
		processor:    processor,
		onConnect:    onConnect,
		logger:       logging.OrNop(logger),
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP handles GET /ws/devices?device_id=ID.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	if s.onConnect != nil {
		if _, err := s.onConnect(r.Context(), deviceID); err != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, service.ErrInvalidInput) {
				status = http.StatusBadRequest
			}
			s.logger.Warn("device connect rejected", zap.String("device_id", deviceID), zap.Error(err))
			http.Error(w, err.Error(), status)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	connection := NewConnection(deviceID, conn, s.processor, s.writeTimeout, 2*s.manager.PingInterval(), s.logger, func(c *Connection) {
		s.manager.Remove(c)
		s.logger.Info("device disconnected", zap.String("device_id", c.DeviceID()))
	})
	s.manager.Add(connection)

	go connection.Start(s.baseCtx)
	s.logger.Info("device connected", zap.String("device_id", deviceID))
}
