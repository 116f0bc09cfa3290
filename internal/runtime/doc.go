// Package runtime assembles a single-node fleetwire instance: the embedded
// store, the telemetry stream, the command queue, the relational sink, and
// the reducer registry, all built from one Config.
package runtime
