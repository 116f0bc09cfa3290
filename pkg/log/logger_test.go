package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(WarnLevel), WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn not written: %q", out)
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l = l.With(Component("dispatch"), Str("device_id", "V1"))
	l.Info("sent", Str("command_id", "c1"))
	out := buf.String()
	for _, want := range []string{"component=dispatch", "device_id=V1", "command_id=c1", "sent"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestJSONFormatterShape(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Error("boom", Err(errFake))
	out := buf.String()
	if !strings.Contains(out, `"level":"ERROR"`) || !strings.Contains(out, `"msg":"boom"`) {
		t.Fatalf("unexpected json: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	if lv, err := ParseLevel("debug"); err != nil || lv != DebugLevel {
		t.Fatalf("debug: %v %v", lv, err)
	}
	if lv, err := ParseLevel(""); err != nil || lv != InfoLevel {
		t.Fatalf("empty: %v %v", lv, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake" }

var errFake = fakeErr{}
