// Package loader turns a handler path into a loaded module with a
// uniform export table.
//
// Loading is a two-step affair. First the source path is resolved to
// its staged artifact under the project build directory; a missing
// artifact is a CompilationMissingError naming both paths and the build
// step to run. Then an ordered list of strategies attempts to load the
// artifact:
//
//  1. restricted - yaegi interpreter with a curated symbol surface
//     (console, timers, process handle, path identity, JSON and string
//     essentials) and its stdout rerouted to the diagnostic stream
//  2. stdlib - yaegi interpreter with the full standard library
//  3. plugin - natively compiled .so exposing an Exports manifest
//
// Each strategy's failure is preserved; only after all three fail does
// the caller see a LoadFailureError aggregating every attempt. A module
// that loads but exposes nothing usable counts as a failed attempt for
// that strategy, so later strategies still get their turn.
//
// Loaded modules are cached per artifact path for the lifetime of the
// process. Module-level state therefore persists across invocations on
// one worker; handler authors who mutate package variables get exactly
// the leakage they asked for.
package loader
