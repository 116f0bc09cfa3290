// Package devicehub maintains live websocket connections from devices and
// pushes queued commands down to them. Devices attach over HTTP and identify
// themselves with a device_id query parameter; frames they push back are fed
// to a MessageHandler, typically the telemetry ingest path.
package devicehub
