package reducer

import (
	"encoding/json"
	"fmt"
)

// ConnectionStatusConnected is the initial connection status of a device the
// pipeline has seen at least once.
const ConnectionStatusConnected = "Connected"

// DeviceState is the per-device view the reducer maintains. One row per
// device, updated on every event, persisted to the device keyspace.
type DeviceState struct {
	DeviceID         string `json:"deviceId"`
	ConnectionStatus string `json:"connectionStatus"`
	LastCommandID    string `json:"lastCommandId,omitempty"`
	LastSeenMs       int64  `json:"lastSeenMs,omitempty"`
	EventCount       uint64 `json:"eventCount"`
}

// stateKey builds the device-state key: device/{namespace}/{deviceID}.
func stateKey(namespace, deviceID string) []byte {
	return []byte(fmt.Sprintf("device/%s/%s", namespace, deviceID))
}

func encodeState(s DeviceState) ([]byte, error) { return json.Marshal(s) }

func decodeState(b []byte) (DeviceState, error) {
	var s DeviceState
	err := json.Unmarshal(b, &s)
	return s, err
}
