package telemetry

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeEvent(t *testing.T) {
	ev := Event{
		DeviceID:      "V1",
		MessageID:     "m1",
		CorrelationID: "c1",
		Properties:    map[string]string{"fw": "1.2.0"},
		Body:          []byte(`{"speed":42}`),
	}
	b, err := Encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, ok := Decode(b)
	if !ok {
		t.Fatalf("decode failed")
	}
	if got.DeviceID != "V1" || got.MessageID != "m1" || got.CorrelationID != "c1" {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if !bytes.Equal(got.Body, ev.Body) {
		t.Fatalf("body mismatch")
	}
	if !got.IsAck() {
		t.Fatalf("expected ack event")
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	b, err := Encode(Event{DeviceID: "V1", MessageID: "m2", Body: []byte("x")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b[len(b)-1] ^= 0xFF
	if _, ok := Decode(b); ok {
		t.Fatalf("expected checksum failure")
	}
	if _, ok := Decode([]byte{0x01}); ok {
		t.Fatalf("expected truncation failure")
	}
}
