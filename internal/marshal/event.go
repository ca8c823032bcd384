package marshal

import (
	"fmt"

	"github.com/gantry-run/gantry/internal/handler"
	"github.com/gantry-run/gantry/internal/resolve"
)

// Event is the structural {payload, timestamp} wrapper an event
// handler receives when no generated event type is registered.
type Event struct {
	Name      string `json:"name"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// primitivePayloadTypes are schema payload types that never go through
// model instantiation; their value is used directly.
var primitivePayloadTypes = map[string]bool{
	"String":   true,
	"Int":      true,
	"Float":    true,
	"Boolean":  true,
	"Bool":     true,
	"DateTime": true,
	"Date":     true,
}

// BuildEvent constructs the event value for an event handler. The
// event name comes from context metadata; its absence is a caller bug,
// not something to paper over.
//
// Payload handling depends on the declared payload type: primitives
// are unwrapped and used as-is; a non-primitive type with a registered
// model constructor is instantiated from the raw payload, falling back
// to the raw payload unchanged when construction fails.
func (r *Registry) BuildEvent(ctx *handler.InvocationContext) (Decoded, error) {
	eventName := ctx.Metadata[handler.MetaEventName]
	if eventName == "" {
		return Decoded{}, fmt.Errorf("event handler %q invoked without %s metadata", ctx.HandlerName, handler.MetaEventName)
	}

	payload := r.eventPayload(ctx)

	if c, ok := r.lookup(kindEvent, eventName); ok {
		v, err := c(map[string]any{
			"payload":   payload,
			"timestamp": ctx.Timestamp,
		})
		if err == nil {
			return typed(v), nil
		}
		fellBack(kindEvent, eventName, err)
	} else {
		fellBack(kindEvent, eventName, nil)
	}

	return rawValue(Event{Name: eventName, Payload: payload, Timestamp: ctx.Timestamp}), nil
}

func (r *Registry) eventPayload(ctx *handler.InvocationContext) any {
	payloadType := ctx.Metadata[handler.MetaEventPayloadType]

	if primitivePayloadTypes[payloadType] {
		return unwrapPrimitive(ctx.Payload)
	}

	if payloadType != "" {
		if c, ok := r.lookup(kindModel, payloadType); ok {
			if fields, isMap := ctx.Payload.(map[string]any); isMap {
				if v, err := c(camelizeKeys(fields)); err == nil {
					return v
				} else {
					fellBack(kindModel, payloadType, err)
				}
			}
		}
	}
	return ctx.Payload
}

// unwrapPrimitive extracts a primitive value that arrived wrapped in a
// {"payload": x} envelope or a single-key map.
func unwrapPrimitive(payload any) any {
	m, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	if v, hasPayload := m["payload"]; hasPayload {
		return v
	}
	if len(m) == 1 {
		for _, v := range m {
			return v
		}
	}
	return payload
}

// camelizeKeys renames snake_case payload keys to the camelCase field
// names generated models declare. Values pass through untouched.
func camelizeKeys(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[resolve.ToCamelCase(k)] = v
	}
	return out
}
