package handler

import "time"

// Metadata keys carried in InvocationContext.Metadata. The host sets
// these per handler kind; the marshaller reads them when building typed
// values.
const (
	MetaEventName        = "event_name"
	MetaEventPayloadType = "event_payload_type"
	MetaWebsocketName    = "websocket_name"
)

// InvocationContext describes one handler call: the payload, the query
// parameters, and kind-specific metadata. It is constructed by the host
// and consumed by the worker.
type InvocationContext struct {
	HandlerName string            `json:"handler_name"`
	HandlerPath string            `json:"handler_path"`
	Payload     any               `json:"payload"`
	QueryParams map[string]string `json:"query_params"`
	Metadata    map[string]string `json:"metadata"`
	Timestamp   string            `json:"timestamp"`
}

// NewContext creates a context for a named handler with empty parameter
// maps and the current time.
func NewContext(handlerName string, payload any) *InvocationContext {
	return &InvocationContext{
		HandlerName: handlerName,
		Payload:     payload,
		QueryParams: map[string]string{},
		Metadata:    map[string]string{},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// WithMeta sets a metadata key and returns the context for chaining.
func (c *InvocationContext) WithMeta(key, value string) *InvocationContext {
	c.Metadata[key] = value
	return c
}

// WithQueryParam sets a query parameter and returns the context for chaining.
func (c *InvocationContext) WithQueryParam(key, value string) *InvocationContext {
	c.QueryParams[key] = value
	return c
}
