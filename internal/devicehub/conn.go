package devicehub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetwire/fleetwire/pkg/log"
)

const (
	readLimit    = 1 << 20
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

var errSendBufferFull = errors.New("devicehub: send buffer full")

// conn wraps one device websocket. Writes go through the send channel so a
// single goroutine owns the socket.
type conn struct {
	deviceID     string
	ws           *websocket.Conn
	send         chan []byte
	logger       log.Logger
	writeTimeout time.Duration
	onClose      func(deviceID string)

	mu     sync.Mutex
	closed bool
}

func newConn(deviceID string, ws *websocket.Conn, writeTimeout time.Duration, logger log.Logger, onClose func(string)) *conn {
	return &conn{
		deviceID:     deviceID,
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		logger:       logger,
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// enqueue hands msg to the write pump. It fails when the device is gone or
// the buffer is full; callers treat either as a failed delivery.
func (c *conn) enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDeviceOffline
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

// run starts the write pump and blocks on the read pump until the socket
// dies or ctx ends.
func (c *conn) run(ctx context.Context, handler MessageHandler) {
	go c.writePump(ctx)
	c.readPump(ctx, handler)
}

func (c *conn) readPump(ctx context.Context, handler MessageHandler) {
	defer c.cleanup()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("device connection closed", log.Str("device_id", c.deviceID), log.Err(err))
			return
		}
		if handler == nil {
			continue
		}
		if err := handler.HandleDeviceMessage(ctx, c.deviceID, message); err != nil {
			c.logger.Warn("device message rejected", log.Str("device_id", c.deviceID), log.Err(err))
		}
	}
}

func (c *conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) cleanup() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c.deviceID)
	}
}
