// Package pool manages the host side of handler workers: spawning
// worker processes, waiting for their ready handshake, routing
// invocations over the line protocol, and replacing workers that die
// or misbehave. A pool hands out workers one invocation at a time;
// concurrency comes from pool size, never from pipelining on a single
// worker.
package pool
