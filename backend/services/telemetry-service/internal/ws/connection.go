package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageBytes = 64 * 1024

// MessageProcessor handles raw device frames.
type MessageProcessor interface {
	Process(ctx context.Context, deviceID string, raw []byte) ([]byte, error)
}

// Connection represents an active device WebSocket connection.
type Connection struct {
	deviceID     string
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeMu      sync.Mutex
	logger       *zap.Logger
	processor    MessageProcessor
	writeTimeout time.Duration
	pongWait     time.Duration
	onClose      func(*Connection)
}

// NewConnection builds connection wrapper. The read deadline is extended on every pong.
func NewConnection(deviceID string, ws *websocket.Conn, processor MessageProcessor, writeTimeout, pongWait time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	return &Connection{
		deviceID:     deviceID,
		ws:           ws,
		send:         make(chan []byte, 16),
		done:         make(chan struct{}),
		logger:       logger,
		processor:    processor,
		writeTimeout: writeTimeout,
		pongWait:     pongWait,
		onClose:      onClose,
	}
}

// DeviceID returns identifier.
func (c *Connection) DeviceID() string {
	return c.deviceID
}

// Start runs the read and write pumps and returns when the connection is closed.
func (c *Connection) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.Close()
	c.ws.SetReadLimit(maxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed", zap.String("device_id", c.deviceID), zap.Error(err))
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))

		response, err := c.processor.Process(ctx, c.deviceID, message)
		if err != nil {
			c.logger.Warn("failed to process message", zap.String("device_id", c.deviceID), zap.Error(err))
			continue
		}
		if response != nil {
			c.Send(response)
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Send enqueues a message for writing.
func (c *Connection) Send(msg []byte) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn("dropping outgoing message, buffer full", zap.String("device_id", c.deviceID))
	}
}

// Ping sends ping.
func (c *Connection) Ping() error {
	return c.write(websocket.PingMessage, []byte("ping"))
}

func (c *Connection) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// Close sends a close frame, releases the socket and runs onClose once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
