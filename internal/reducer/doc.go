// Package reducer maintains per-device state folded from the telemetry
// stream. Each device gets its own reducer with its own mutex: events for a
// single device apply strictly in order while distinct devices process in
// parallel. A telemetry event carrying a correlation id acknowledges the
// matching command, moving it to Received.
package reducer
