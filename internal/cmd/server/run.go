package serverrun

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/fleetwire/fleetwire/internal/config"
	"github.com/fleetwire/fleetwire/internal/consumer"
	"github.com/fleetwire/fleetwire/internal/devicehub"
	"github.com/fleetwire/fleetwire/internal/dispatch"
	"github.com/fleetwire/fleetwire/internal/runtime"
	httpserver "github.com/fleetwire/fleetwire/internal/server/http"
	"github.com/fleetwire/fleetwire/internal/stream"
	"github.com/fleetwire/fleetwire/internal/telemetry"
	"github.com/fleetwire/fleetwire/pkg/id"
	logpkg "github.com/fleetwire/fleetwire/pkg/log"
)

// Options configures a server run. Config is assumed to already carry file
// and environment overlays.
type Options struct {
	Config cfgpkg.Config
}

// Run starts the full pipeline: one consumer per partition, the command
// dispatch loop, the device hub, and the HTTP server. It blocks until ctx is
// cancelled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers
	// without signal handling still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	logCfg := &logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	logger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting fleetwire server",
		logpkg.Str("http", cfg.HTTP.Addr),
		logpkg.Str("namespace", cfg.Namespace),
		logpkg.Str("stream", cfg.Stream.Name),
		logpkg.Int("partitions", cfg.Stream.Partitions),
		logpkg.Dur("checkpoint_interval", cfg.Stream.CheckpointInterval()),
	)

	hub := devicehub.NewHub(rt.Sink(), ingestHandler(rt.Stream(), logger), logger)
	defer hub.Close()

	endpoint := dispatch.NewBreakerEndpoint("devicehub", hub, dispatch.BreakerConfig{
		FailureThreshold: cfg.Queue.BreakerFailureThreshold,
		Timeout:          cfg.Queue.BreakerTimeout(),
	}, logger)
	loop := dispatch.NewLoop(rt.Queue(), rt.Sink(), endpoint, logger, rt.Pipeline(), cfg.Queue.DispatchIdle())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(sctx)
	}()

	// One consumer per partition, each owning its cursor.
	for i := 0; i < rt.Stream().Partitions(); i++ {
		part, err := rt.Stream().Partition(uint32(i))
		if err != nil {
			return err
		}
		c, err := consumer.New(part, rt.Cursors(), rt.Reducers(), cfg.Namespace, cfg.Stream.Name, consumer.Options{
			Group:              cfg.Stream.ConsumerGroup,
			CheckpointInterval: cfg.Stream.CheckpointInterval(),
			Filter:             cfg.Stream.Filter,
		}, logger, rt.Pipeline())
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Run(sctx)
		}()
	}

	hsrv := httpserver.New(rt, hub, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTP.Addr); err != nil && sctx.Err() == nil {
			logger.Error("http server failed", logpkg.Err(err))
			stop()
		}
	}()

	<-sctx.Done()
	// Shut servers down before the runtime so in-flight handlers never see
	// a closed store.
	hsrv.Close()
	wg.Wait()
	return nil
}

// deviceFrame is the JSON envelope devices push over their websocket.
type deviceFrame struct {
	MessageID     string            `json:"messageId"`
	CorrelationID string            `json:"correlationId"`
	Properties    map[string]string `json:"properties"`
	Body          json.RawMessage   `json:"body"`
}

// ingestHandler appends device websocket frames to the telemetry stream.
// Frames that are not the JSON envelope are ingested as opaque bodies.
func ingestHandler(st *stream.Stream, logger logpkg.Logger) devicehub.MessageHandler {
	ids := id.NewGenerator()
	return devicehub.MessageHandlerFunc(func(ctx context.Context, deviceID string, raw []byte) error {
		var frame deviceFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			frame = deviceFrame{Body: raw}
		} else if len(frame.Body) == 0 && frame.MessageID == "" && frame.CorrelationID == "" {
			// JSON, but not the envelope. Keep the whole frame as body.
			frame.Body = raw
		}
		if frame.MessageID == "" {
			frame.MessageID = ids.Next().String()
		}
		ev := telemetry.Event{
			DeviceID:      deviceID,
			MessageID:     frame.MessageID,
			CorrelationID: frame.CorrelationID,
			Properties:    frame.Properties,
			EnqueuedMs:    time.Now().UnixMilli(),
			Body:          frame.Body,
		}
		_, _, err := st.Ingest(ctx, ev)
		if err != nil {
			logger.Error("websocket ingest failed", logpkg.Str("device_id", deviceID), logpkg.Err(err))
		}
		return err
	})
}
