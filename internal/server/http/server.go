package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetwire/fleetwire/internal/command"
	"github.com/fleetwire/fleetwire/internal/devicehub"
	"github.com/fleetwire/fleetwire/internal/runtime"
	"github.com/fleetwire/fleetwire/internal/sink"
	"github.com/fleetwire/fleetwire/internal/telemetry"
	"github.com/fleetwire/fleetwire/pkg/id"
	"github.com/fleetwire/fleetwire/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	hub    *devicehub.Hub
	logger log.Logger
	ids    *id.Generator
	secret string
	srv    *http.Server
	lis    net.Listener
}

func New(rt *runtime.Runtime, hub *devicehub.Hub, logger log.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		hub:    hub,
		logger: logger.WithComponent("http"),
		ids:    id.NewGenerator(),
		secret: rt.Config().HTTP.AuthSecret,
		srv:    &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/commands", s.auth(s.handleCommandCreate))
	mux.HandleFunc("/v1/commands/", s.auth(s.handleCommandGet))
	mux.HandleFunc("/v1/devices/ws", s.handleDeviceWS)
	mux.HandleFunc("/v1/devices/", s.auth(s.handleDeviceGet))
	mux.HandleFunc("/v1/ingest", s.auth(s.handleIngest))
	mux.HandleFunc("/v1/vehicles/", s.auth(s.handleVehicleLock))
	mux.Handle("/metrics", promhttp.HandlerFor(rt.MetricsRegistry(), promhttp.HandlerOpts{}))
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type commandCreateReq struct {
	DeviceID    string `json:"deviceId"`
	CommandType string `json:"commandType"`
}

type commandCreateResp struct {
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
}

func (s *Server) handleCommandCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req commandCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	ctype, err := command.ParseType(req.CommandType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.enqueueCommand(r.Context(), w, req.DeviceID, ctype)
}

// enqueueCommand runs the durable enqueue and writes the outcome. The Queued
// response is sent only after the enqueue has committed.
func (s *Server) enqueueCommand(ctx context.Context, w http.ResponseWriter, deviceID string, ctype command.Type) {
	cmd := command.Command{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Type:      ctype,
		Status:    command.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.rt.Queue().Enqueue(ctx, cmd); err != nil {
		s.logger.Error("command enqueue failed",
			log.Str("device_id", deviceID),
			log.Str("command_type", string(ctype)),
			log.Err(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(commandCreateResp{CommandID: cmd.ID, Status: string(command.StatusError)})
		return
	}
	s.rt.Pipeline().IncCommandsEnqueued()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(commandCreateResp{CommandID: cmd.ID, Status: string(command.StatusQueued)})
}

func (s *Server) handleCommandGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	commandID := strings.TrimPrefix(r.URL.Path, "/v1/commands/")
	if commandID == "" || strings.Contains(commandID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	cmd, err := s.rt.Sink().GetCommand(r.Context(), commandID)
	if err != nil {
		if errors.Is(err, sink.ErrCommandNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cmd)
}

func (s *Server) handleDeviceGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := strings.TrimPrefix(r.URL.Path, "/v1/devices/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	red, ok := s.rt.Reducers().Get(deviceID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(red.State())
}

func (s *Server) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	s.hub.Attach(w, r)
}

type ingestReq struct {
	DeviceID      string            `json:"deviceId"`
	MessageID     string            `json:"messageId"`
	CorrelationID string            `json:"correlationId"`
	Properties    map[string]string `json:"properties"`
	Body          json.RawMessage   `json:"body"`
}

type ingestResp struct {
	Partition uint32 `json:"partition"`
	Sequence  uint64 `json:"sequence"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req ingestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		req.MessageID = s.ids.Next().String()
	}
	ev := telemetry.Event{
		DeviceID:      req.DeviceID,
		MessageID:     req.MessageID,
		CorrelationID: req.CorrelationID,
		Properties:    req.Properties,
		EnqueuedMs:    time.Now().UnixMilli(),
		Body:          req.Body,
	}
	part, seq, err := s.rt.Stream().Ingest(r.Context(), ev)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(ingestResp{Partition: part, Sequence: seq})
}

// handleVehicleLock serves GET /v1/vehicles/{vin}/lock: a convenience route
// that enqueues a DoorLock command for the vehicle.
func (s *Server) handleVehicleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	vin, action, ok := strings.Cut(rest, "/")
	if !ok || vin == "" || action != "lock" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.enqueueCommand(r.Context(), w, vin, command.TypeDoorLock)
}
