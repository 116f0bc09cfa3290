package command

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an outbound command.
type Status string

const (
	// StatusQueued is set when the command enters the durable queue.
	StatusQueued Status = "Queued"
	// StatusSent is set after successful hand-off to the device endpoint.
	StatusSent Status = "Sent"
	// StatusReceived is set when the device acknowledges via telemetry.
	StatusReceived Status = "Received"
	// StatusError is set when the endpoint send fails. Terminal; an external
	// operator may requeue, the core never retries.
	StatusError Status = "Error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusSent, StatusReceived, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further core-driven transition applies.
func (s Status) Terminal() bool { return s == StatusReceived || s == StatusError }

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Repeating the current status is allowed so concurrent writers can
// apply transitions idempotently. Received is accepted from Queued as well as
// Sent: the Sent update is best-effort and a device acknowledgement can
// arrive before it lands.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusQueued:
		return next == StatusSent || next == StatusReceived || next == StatusError
	case StatusSent:
		return next == StatusReceived || next == StatusError
	default:
		return false
	}
}

// Type enumerates the vehicle commands the fleet understands.
type Type string

const (
	TypeDoorLock    Type = "DoorLock"
	TypeDoorUnlock  Type = "DoorUnlock"
	TypeEngineStart Type = "EngineStart"
	TypeEngineStop  Type = "EngineStop"
)

// ParseType validates a request-supplied command type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDoorLock, TypeDoorUnlock, TypeEngineStart, TypeEngineStop:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown command type %q", s)
}

// Command is one outbound device command. ID is unique per command; DeviceID
// is the target vehicle.
type Command struct {
	ID        string    `json:"commandId"`
	DeviceID  string    `json:"deviceId"`
	Type      Type      `json:"commandType"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
