package telemetry

import (
	"encoding/json"
)

// Event is a single device-to-cloud telemetry message. Immutable once
// received. CorrelationID, when present, names the command this event
// acknowledges.
type Event struct {
	DeviceID      string            `json:"deviceId"`
	MessageID     string            `json:"messageId"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
	EnqueuedMs    int64             `json:"enqueuedMs,omitempty"`

	// Body is the opaque payload; it travels outside the JSON header.
	Body []byte `json:"-"`
}

// IsAck reports whether the event acknowledges a previously issued command.
func (e Event) IsAck() bool { return e.CorrelationID != "" }

// Encode frames the event as header|payload with CRC protection. The header
// is the JSON metadata; the payload is the opaque body.
func Encode(e Event) ([]byte, error) {
	header, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return EncodeRecord(header, e.Body), nil
}

// Decode parses a framed event. Returns false when the frame is truncated,
// corrupt, or the header is not valid metadata.
func Decode(b []byte) (Event, bool) {
	dec, ok := DecodeRecord(b)
	if !ok {
		return Event{}, false
	}
	var e Event
	if err := json.Unmarshal(dec.Header, &e); err != nil {
		return Event{}, false
	}
	e.Body = dec.Payload
	return e, true
}
