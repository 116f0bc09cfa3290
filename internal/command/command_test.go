package command

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusQueued, StatusSent, true},
		{StatusQueued, StatusError, true},
		// an acknowledgement can land before the best-effort Sent update
		{StatusQueued, StatusReceived, true},
		{StatusSent, StatusReceived, true},
		{StatusSent, StatusError, true},
		{StatusReceived, StatusSent, false},
		{StatusError, StatusSent, false},
		// idempotent repeats are always legal
		{StatusReceived, StatusReceived, true},
		{StatusError, StatusError, true},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Fatalf("%s->%s: got %v want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusQueued.Terminal() || StatusSent.Terminal() {
		t.Fatalf("queued/sent must not be terminal")
	}
	if !StatusReceived.Terminal() || !StatusError.Terminal() {
		t.Fatalf("received/error must be terminal")
	}
}

func TestParseType(t *testing.T) {
	if _, err := ParseType("DoorLock"); err != nil {
		t.Fatalf("doorlock: %v", err)
	}
	if _, err := ParseType("SelfDestruct"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
