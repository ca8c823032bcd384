// Package marshal turns a raw invocation context into the value(s) a
// handler is called with: a request object for api-style handlers, a
// {payload, timestamp} event wrapper for event handlers, and
// connection/message objects for websocket handlers.
//
// Generated code registers typed constructors in a Registry keyed by
// schema-declared name; when a constructor exists and accepts the raw
// fields, the handler sees the typed value. When it does not - not
// generated yet, or the payload does not fit - construction falls back
// to a plain structural value carrying the same fields. The fallback is
// deliberate and observable: every Decoded carries its Source tag and
// fallbacks are logged at debug level, instead of being swallowed.
package marshal
