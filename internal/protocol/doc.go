// Package protocol implements the line-delimited JSON-RPC 2.0 framing
// spoken between the host pool and a worker process.
//
// Each request and each response is exactly one JSON object per line.
// The worker's stdout carries nothing but well-formed frames; any stray
// byte there corrupts parsing on the host, so all diagnostics go to
// stderr. The single exception to request/response pairing is the ready
// notification {"type":"ready"}, emitted once by the worker before it
// begins accepting requests.
//
// Transport faults (unparseable line, unknown method) use the RPC error
// object with standard JSON-RPC codes. Handler-level outcomes never do;
// they travel inside a normal result payload.
package protocol
