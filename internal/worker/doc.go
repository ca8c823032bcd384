// Package worker implements the guest side of the execution protocol:
// the read loop and RPC dispatcher served over stdin/stdout, the
// load-resolve-invoke runner, and the per-invocation State that
// captures logs, triggers, and auto-trigger payload overrides.
//
// A worker serves one invocation at a time. The dispatcher holds a
// mutex across each execute call, which makes the single-invocation
// contract enforceable rather than conventional: a fresh State is
// owned exclusively by the in-flight invocation, so the log buffer of
// one call can never leak into another's result.
//
// Every failure inside the runner - missing compilation, load failure,
// unresolvable handler, handler panic - becomes a well-formed result
// with success=false. The RPC error channel is reserved for transport
// faults (unparseable frames, unknown methods); the host can therefore
// rely on one correlated response per request no matter what handler
// code does.
package worker
