// Package httpserver provides the REST gateway for fleetwire: command
// issue and status lookup, device state reads, a telemetry ingest endpoint,
// the device websocket attach point, health, and prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, hub, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
