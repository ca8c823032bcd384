// Package handler defines the data model shared by the worker and the
// host: the invocation context sent with every execute request, the
// execution result returned for it, and the handler kind taxonomy
// inferred from a handler's path.
//
// The shapes here are wire shapes. Field names and JSON tags are part of
// the protocol contract between the pool (host side) and the worker
// (guest side) and must not drift independently.
package handler
