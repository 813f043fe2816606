package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
)

// Manager tracks device connections, pings them and closes them on shutdown.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewManager builds connection manager.
func NewManager(pingInterval time.Duration, logger *zap.Logger) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[string]*Connection),
		pingInterval: pingInterval,
		logger:       logging.OrNop(logger),
	}
}

// PingInterval is the keepalive period.
func (m *Manager) PingInterval() time.Duration {
	return m.pingInterval
}

// Add registers a connection, closing any previous one for the same device.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	previous := m.connections[conn.DeviceID()]
	m.connections[conn.DeviceID()] = conn
	m.mu.Unlock()

	if previous != nil {
		m.logger.Info("replacing device connection", zap.String("device_id", conn.DeviceID()))
		previous.Close()
	}
}

// Remove drops conn if it is still the device's current connection.
func (m *Manager) Remove(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[conn.DeviceID()] == conn {
		delete(m.connections, conn.DeviceID())
	}
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Start pings every connection each interval until ctx is done, then closes them all.
func (m *Manager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return nil
		case <-ticker.C:
			for _, conn := range m.snapshot() {
				if err := conn.Ping(); err != nil {
					m.logger.Debug("ping failed", zap.String("device_id", conn.DeviceID()), zap.Error(err))
					conn.Close()
				}
			}
		}
	}
}

// CloseAll closes every connection.
func (m *Manager) CloseAll() {
	for _, conn := range m.snapshot() {
		conn.Close()
	}
}

func (m *Manager) snapshot() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}
