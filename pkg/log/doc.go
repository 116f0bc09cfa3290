// Package log provides fleetwire's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by the standard
// library slog via a bridge handler that feeds our formatter/output pipeline,
// so output stays consistent across the codebase while slog-aware libraries
// can still plug in.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	)
//	l = l.With(log.Component("dispatch"))
//	l.Info("command sent", log.Str("command_id", id))
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// format), and RedirectStdLog to route stdlib log output (for example from
// Pebble) through the facade.
package log
