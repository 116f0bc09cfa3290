package consumer

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/fleetwire/fleetwire/internal/telemetry"
)

// celFilter wraps a compiled CEL program evaluated against each event before
// dispatch. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("device_id", cel.StringType),
		cel.Variable("message_id", cel.StringType),
		cel.Variable("correlation_id", cel.StringType),
		cel.Variable("enqueued_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON body for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("properties", cel.MapType(cel.StringType, cel.StringType)),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an event. Evaluation errors
// reject the event.
func (f celFilter) Eval(ev telemetry.Event) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(ev.Body, &jsonObj)
	props := ev.Properties
	if props == nil {
		props = map[string]string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"device_id":      ev.DeviceID,
		"message_id":     ev.MessageID,
		"correlation_id": ev.CorrelationID,
		"enqueued_ms":    ev.EnqueuedMs,
		"size":           int64(len(ev.Body)),
		"text":           string(ev.Body),
		"json":           jsonObj,
		"properties":     props,
		"now_ms":         time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
