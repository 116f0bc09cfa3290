package config

import (
	"os"
	"strconv"
)

// FromEnv overlays FLEETWIRE_* environment variables onto cfg. Environment
// wins over file values.
func FromEnv(cfg *Config) {
	envStr("FLEETWIRE_DATA_DIR", &cfg.DataDir)
	envStr("FLEETWIRE_NAMESPACE", &cfg.Namespace)

	envStr("FLEETWIRE_LOG_LEVEL", &cfg.Log.Level)
	envStr("FLEETWIRE_LOG_FORMAT", &cfg.Log.Format)
	envStr("FLEETWIRE_LOG_FILE", &cfg.Log.File)

	envStr("FLEETWIRE_FSYNC_MODE", &cfg.Storage.FsyncMode)
	envInt("FLEETWIRE_FSYNC_INTERVAL_MS", &cfg.Storage.FsyncIntervalMs)

	envStr("FLEETWIRE_STREAM_NAME", &cfg.Stream.Name)
	envInt("FLEETWIRE_STREAM_PARTITIONS", &cfg.Stream.Partitions)
	envStr("FLEETWIRE_CONSUMER_GROUP", &cfg.Stream.ConsumerGroup)
	envInt("FLEETWIRE_CHECKPOINT_INTERVAL_SEC", &cfg.Stream.CheckpointIntervalSec)
	envStr("FLEETWIRE_INGEST_FILTER", &cfg.Stream.Filter)

	envStr("FLEETWIRE_QUEUE_NAME", &cfg.Queue.Name)
	envInt("FLEETWIRE_DISPATCH_IDLE_MS", &cfg.Queue.DispatchIdleMs)
	envUint32("FLEETWIRE_BREAKER_FAILURE_THRESHOLD", &cfg.Queue.BreakerFailureThreshold)
	envInt("FLEETWIRE_BREAKER_TIMEOUT_SEC", &cfg.Queue.BreakerTimeoutSec)

	envStr("FLEETWIRE_POSTGRES_DSN", &cfg.Sink.PostgresDSN)

	envStr("FLEETWIRE_HTTP_ADDR", &cfg.HTTP.Addr)
	envStr("FLEETWIRE_AUTH_SECRET", &cfg.HTTP.AuthSecret)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envUint32(key string, dst *uint32) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}
