package marshal

import (
	"github.com/gantry-run/gantry/internal/handler"
)

// Connection is the structural fallback value for a websocket
// connection when no generated <Endpoint>Connection type is
// registered.
type Connection struct {
	Endpoint string         `json:"endpoint"`
	Fields   map[string]any `json:"fields"`
}

// Message is the structural fallback for a websocket message.
type Message struct {
	Endpoint string         `json:"endpoint"`
	Fields   map[string]any `json:"fields"`
}

// BuildConnection constructs the connection value for a websocket
// handler, named after the endpoint from context metadata (handler
// name when absent). The connection sub-object of the payload is used
// when present, the whole payload otherwise.
func (r *Registry) BuildConnection(ctx *handler.InvocationContext) Decoded {
	endpoint := websocketEndpoint(ctx)
	fields := subObject(ctx.Payload, "connection")

	if c, ok := r.lookup(kindConnection, endpoint); ok {
		if v, err := c(fields); err == nil {
			return typed(v)
		} else {
			fellBack(kindConnection, endpoint, err)
		}
	} else {
		fellBack(kindConnection, endpoint, nil)
	}
	return rawValue(Connection{Endpoint: endpoint, Fields: fields})
}

// BuildMessage constructs the message value for a three-parameter
// websocket handler. The second return is false when the payload
// carries no message sub-object; the caller passes the raw payload in
// that position instead.
func (r *Registry) BuildMessage(ctx *handler.InvocationContext) (Decoded, bool) {
	payload, ok := ctx.Payload.(map[string]any)
	if !ok {
		return Decoded{}, false
	}
	raw, ok := payload["message"]
	if !ok {
		return Decoded{}, false
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return rawValue(raw), true
	}

	endpoint := websocketEndpoint(ctx)
	if c, ok := r.lookup(kindMessage, endpoint); ok {
		if v, err := c(fields); err == nil {
			return typed(v), true
		} else {
			fellBack(kindMessage, endpoint, err)
		}
	} else {
		fellBack(kindMessage, endpoint, nil)
	}
	return rawValue(Message{Endpoint: endpoint, Fields: fields}), true
}

func websocketEndpoint(ctx *handler.InvocationContext) string {
	if name := ctx.Metadata[handler.MetaWebsocketName]; name != "" {
		return name
	}
	return ctx.HandlerName
}

// subObject returns payload[key] when it is a map, else the payload's
// own fields.
func subObject(payload any, key string) map[string]any {
	m, ok := payload.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	return m
}
