package worker

import (
	"reflect"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"

	"github.com/gantry-run/gantry/internal/handler"
	"github.com/gantry-run/gantry/internal/marshal"
)

// State is the capture container handed to a handler alongside its
// request. One State exists per invocation and is never shared; its
// snapshot is attached to the ExecutionResult unconditionally, success
// or failure.
//
// The mutex guards against handlers that log from goroutines of their
// own; the worker itself touches a State from one goroutine only.
type State struct {
	handlerName string

	mu           sync.Mutex
	logs         []handler.LogRecord
	triggers     []handler.TriggerRecord
	autoPayloads map[string]any
}

// NewState creates an empty capture container for one invocation of
// the named handler.
func NewState(handlerName string) *State {
	return &State{
		handlerName:  handlerName,
		logs:         []handler.LogRecord{},
		triggers:     []handler.TriggerRecord{},
		autoPayloads: map[string]any{},
	}
}

func (s *State) log(level handler.LogLevel, msg string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, handler.LogRecord{
		Level:     level,
		Handler:   s.handlerName,
		Message:   msg,
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Info appends an info-level log record.
func (s *State) Info(msg string, fields map[string]any) { s.log(handler.LevelInfo, msg, fields) }

// Warn appends a warn-level log record.
func (s *State) Warn(msg string, fields map[string]any) { s.log(handler.LevelWarn, msg, fields) }

// Error appends an error-level log record.
func (s *State) Error(msg string, fields map[string]any) { s.log(handler.LevelError, msg, fields) }

// Debug appends a debug-level log record.
func (s *State) Debug(msg string, fields map[string]any) { s.log(handler.LevelDebug, msg, fields) }

// Trace appends a trace-level log record.
func (s *State) Trace(msg string, fields map[string]any) { s.log(handler.LevelTrace, msg, fields) }

// TriggerEvent records an explicit request to emit a named event after
// the handler completes. Order is preserved; re-dispatch is the
// engine's job.
func (s *State) TriggerEvent(eventName string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, handler.TriggerRecord{EventName: eventName, Payload: payload})
}

// SetPayload records a default payload for an auto-triggered event
// declared in the schema. Last write wins when called repeatedly for
// the same event within one invocation.
func (s *State) SetPayload(eventName string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPayloads[eventName] = payload
}

// attach copies the captured state onto a result.
func (s *State) attach(result *handler.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.Logs = append([]handler.LogRecord{}, s.logs...)
	result.Triggers = append([]handler.TriggerRecord{}, s.triggers...)
	result.AutoTriggerPayloads = make(map[string]any, len(s.autoPayloads))
	for k, v := range s.autoPayloads {
		result.AutoTriggerPayloads[k] = v
	}
}

// HostSymbols is the binding surface interpreted handler modules see
// as `import "gantry"`. It rides into the loader as extra symbols, so
// a handler can declare typed parameters (*gantry.State, gantry.Event)
// instead of asserting everything out of any.
func HostSymbols() interp.Exports {
	return interp.Exports{
		"gantry/gantry": map[string]reflect.Value{
			"State":      reflect.ValueOf((*State)(nil)),
			"Event":      reflect.ValueOf((*marshal.Event)(nil)),
			"Connection": reflect.ValueOf((*marshal.Connection)(nil)),
			"Message":    reflect.ValueOf((*marshal.Message)(nil)),
		},
	}
}
