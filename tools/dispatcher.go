// Package tools routes agent function calls to local handlers with
// argument normalization and timeout protection. Failures are returned
// to the agent as structured {ok:false, ...} payloads, never raised.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dfordp/Servizio/agentwire"
)

// DefaultTimeout is the fixed ceiling on one tool invocation.
const DefaultTimeout = 8 * time.Second

// Args is the normalized argument set handed to a handler. JSON
// numbers arrive as float64, per encoding/json.
type Args map[string]any

// String returns args[key] when it is a string, else "".
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns args[key] as an int, reporting presence.
func (a Args) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// Bool returns args[key] when it is a bool, else false.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// StringSlice returns args[key] coerced to []string, reporting whether
// the key was present. Scalars become single-element slices, matching
// how callers sometimes speak a lone topping.
func (a Args) StringSlice(key string) ([]string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, ok
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			out = append(out, fmt.Sprint(e))
		}
		return out, true
	case []string:
		return t, true
	default:
		return []string{fmt.Sprint(t)}, true
	}
}

// CallSID returns the injected call identifier.
func (a Args) CallSID() string {
	return a.String("call_sid")
}

// Handler executes one tool call. The returned value is serialized to
// JSON for the agent.
type Handler func(ctx context.Context, args Args) (any, error)

// Tool pairs a schema definition with its handler.
type Tool struct {
	Def     agentwire.FunctionDef
	Handler Handler
}

// Dispatcher resolves tool names against a fixed registry.
type Dispatcher struct {
	tools   map[string]Tool
	timeout time.Duration
	log     logrus.FieldLogger
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides the invocation ceiling.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.timeout = d
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(dp *Dispatcher) {
		dp.log = log
	}
}

// NewDispatcher builds a dispatcher over a fixed tool set.
func NewDispatcher(toolset []Tool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tools:   make(map[string]Tool, len(toolset)),
		timeout: DefaultTimeout,
		log:     logrus.StandardLogger(),
	}
	for _, t := range toolset {
		d.tools[t.Def.Name] = t
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NormalizeArgs turns raw wire arguments into an Args map. Arguments
// may arrive as a JSON object, a JSON-encoded string, or garbage; the
// fallback is always an empty set.
func NormalizeArgs(raw json.RawMessage) Args {
	if len(raw) == 0 {
		return Args{}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil && m != nil {
		return m
	}

	// Doubly encoded: a string whose contents are the JSON object.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if err := json.Unmarshal([]byte(s), &m); err == nil && m != nil {
			return m
		}
	}
	return Args{}
}

// Invoke runs the named tool and returns its structured result. Every
// failure mode (unknown tool, timeout, handler error, panic) maps to
// {ok:false, error:...}.
func (d *Dispatcher) Invoke(ctx context.Context, name string, rawArgs json.RawMessage, callSID string) any {
	tool, ok := d.tools[name]
	if !ok {
		return map[string]any{"ok": false, "error": fmt.Sprintf("Unknown tool: %s", name)}
	}

	args := NormalizeArgs(rawArgs)
	if _, present := args["call_sid"]; !present {
		args["call_sid"] = callSID
	}
	args = filterArgs(args, tool.Def)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := tool.Handler(ctx, args)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		d.log.WithField("call_sid", callSID).Warnf("tool %s timed out", name)
		return map[string]any{"ok": false, "error": "tool_timeout"}
	case out := <-done:
		if out.err != nil {
			d.log.WithField("call_sid", callSID).Warnf("tool %s failed: %v", name, out.err)
			return map[string]any{"ok": false, "error": out.err.Error()}
		}
		return out.result
	}
}

// filterArgs keeps only parameters the tool declares, plus the injected
// call_sid. Extra fields are silently ignored so newer agents can send
// arguments older builds do not know.
func filterArgs(args Args, def agentwire.FunctionDef) Args {
	out := make(Args, len(args))
	for k, v := range args {
		if k == "call_sid" {
			out[k] = v
			continue
		}
		if _, ok := def.Parameters.Properties[k]; ok {
			out[k] = v
		}
	}
	return out
}
