package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file and environment.
type Config struct {
	DataDir   string `json:"dataDir" yaml:"dataDir"`
	Namespace string `json:"namespace" yaml:"namespace"`

	Log     LogConfig     `json:"log" yaml:"log"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Stream  StreamConfig  `json:"stream" yaml:"stream"`
	Queue   QueueConfig   `json:"queue" yaml:"queue"`
	Sink    SinkConfig    `json:"sink" yaml:"sink"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
}

// LogConfig mirrors pkg/log.Config.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	File   string `json:"file" yaml:"file"`
}

// StorageConfig tunes the embedded store's durability.
type StorageConfig struct {
	// FsyncMode is one of always, interval, never.
	FsyncMode       string `json:"fsyncMode" yaml:"fsyncMode"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
}

// StreamConfig describes the telemetry stream and its consumers.
type StreamConfig struct {
	Name                  string `json:"name" yaml:"name"`
	Partitions            int    `json:"partitions" yaml:"partitions"`
	ConsumerGroup         string `json:"consumerGroup" yaml:"consumerGroup"`
	CheckpointIntervalSec int    `json:"checkpointIntervalSec" yaml:"checkpointIntervalSec"`
	// Filter is an optional CEL expression applied before dispatch.
	Filter string `json:"filter" yaml:"filter"`
}

// CheckpointInterval returns the checkpoint period.
func (s StreamConfig) CheckpointInterval() time.Duration {
	return time.Duration(s.CheckpointIntervalSec) * time.Second
}

// QueueConfig describes the outbound command queue.
type QueueConfig struct {
	Name           string `json:"name" yaml:"name"`
	DispatchIdleMs int    `json:"dispatchIdleMs" yaml:"dispatchIdleMs"`
	// BreakerFailureThreshold is the consecutive send failures that open
	// the endpoint circuit breaker.
	BreakerFailureThreshold uint32 `json:"breakerFailureThreshold" yaml:"breakerFailureThreshold"`
	BreakerTimeoutSec       int    `json:"breakerTimeoutSec" yaml:"breakerTimeoutSec"`
}

// DispatchIdle returns the idle backoff between empty queue polls.
func (q QueueConfig) DispatchIdle() time.Duration {
	return time.Duration(q.DispatchIdleMs) * time.Millisecond
}

// BreakerTimeout returns how long the breaker stays open.
func (q QueueConfig) BreakerTimeout() time.Duration {
	return time.Duration(q.BreakerTimeoutSec) * time.Second
}

// SinkConfig selects the relational sink. An empty DSN selects the in-memory
// sink, meant for development only.
type SinkConfig struct {
	PostgresDSN string `json:"postgresDsn" yaml:"postgresDsn"`
}

// HTTPConfig describes the API server.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// AuthSecret enables JWT bearer auth on the API when non-empty.
	AuthSecret string `json:"authSecret" yaml:"authSecret"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:   DefaultDataDir(),
		Namespace: "default",
		Log:       LogConfig{Level: "info", Format: "json"},
		Storage:   StorageConfig{FsyncMode: "interval", FsyncIntervalMs: 100},
		Stream: StreamConfig{
			Name:                  "telemetry",
			Partitions:            4,
			ConsumerGroup:         "fleetwire",
			CheckpointIntervalSec: 300,
		},
		Queue: QueueConfig{
			Name:                    "commands",
			DispatchIdleMs:          1000,
			BreakerFailureThreshold: 5,
			BreakerTimeoutSec:       30,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot start with.
func (c Config) Validate() error {
	if c.Stream.Partitions <= 0 {
		return fmt.Errorf("stream.partitions must be positive, got %d", c.Stream.Partitions)
	}
	switch c.Storage.FsyncMode {
	case "always", "interval", "never":
	default:
		return fmt.Errorf("storage.fsyncMode must be always, interval, or never, got %q", c.Storage.FsyncMode)
	}
	if c.Stream.CheckpointIntervalSec <= 0 {
		return fmt.Errorf("stream.checkpointIntervalSec must be positive, got %d", c.Stream.CheckpointIntervalSec)
	}
	return nil
}
