package devicehub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetwire/fleetwire/internal/sink"
	"github.com/fleetwire/fleetwire/pkg/log"
)

// ErrDeviceOffline is returned when a command targets a device with no
// active websocket. The dispatch loop records it as a send failure.
var ErrDeviceOffline = errors.New("devicehub: device not connected")

const defaultWriteTimeout = 10 * time.Second

// MessageHandler consumes raw frames a device pushes over its websocket.
type MessageHandler interface {
	HandleDeviceMessage(ctx context.Context, deviceID string, raw []byte) error
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, deviceID string, raw []byte) error

func (f MessageHandlerFunc) HandleDeviceMessage(ctx context.Context, deviceID string, raw []byte) error {
	return f(ctx, deviceID, raw)
}

// commandFrame is the JSON envelope pushed to devices.
type commandFrame struct {
	CommandID   string `json:"commandId"`
	CommandType string `json:"commandType,omitempty"`
}

// Hub tracks live device websockets and delivers commands to them. It is the
// production Endpoint behind the dispatch loop.
type Hub struct {
	sink         sink.Sink
	handler      MessageHandler
	logger       log.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewHub builds a hub. s resolves command types for outbound frames and may
// be nil. handler receives inbound device frames and may be nil.
func NewHub(s sink.Sink, handler MessageHandler, logger log.Logger) *Hub {
	return &Hub{
		sink:         s,
		handler:      handler,
		logger:       logger.WithComponent("devicehub"),
		writeTimeout: defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// Attach is the HTTP handler that upgrades a device connection. The device
// identifies itself with the device_id query parameter.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", log.Str("device_id", deviceID), log.Err(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var c *conn
	c = newConn(deviceID, ws, h.writeTimeout, h.logger, func(id string) {
		h.removeIf(id, c)
		cancel()
	})
	h.add(c)
	h.logger.Info("device connected", log.Str("device_id", deviceID))

	go c.run(ctx, h.handler)
}

// Send implements dispatch.Endpoint. The frame carries the command type when
// the sink can resolve it; delivery of the id alone is still valid.
func (h *Hub) Send(ctx context.Context, deviceID, commandID string) error {
	h.mu.RLock()
	c, ok := h.conns[deviceID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceOffline, deviceID)
	}

	frame := commandFrame{CommandID: commandID}
	if h.sink != nil {
		if cmd, err := h.sink.GetCommand(ctx, commandID); err == nil {
			frame.CommandType = string(cmd.Type)
		}
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal command frame: %w", err)
	}
	return c.enqueue(payload)
}

// Connected reports whether deviceID has an active websocket.
func (h *Hub) Connected(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[deviceID]
	return ok
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*conn)
	h.mu.Unlock()
	for _, c := range conns {
		c.cleanup()
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	old, had := h.conns[c.deviceID]
	h.conns[c.deviceID] = c
	h.mu.Unlock()
	if had {
		// Newest connection wins. The old conn's removeIf is a no-op
		// because the map no longer points at it.
		go old.cleanup()
	}
}

// removeIf unregisters deviceID only while c is still its active conn, so a
// stale connection's teardown cannot evict its replacement.
func (h *Hub) removeIf(deviceID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[deviceID] == c {
		delete(h.conns, deviceID)
	}
}
