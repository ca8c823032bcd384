// Package resolve selects "the" handler function from a loaded module's
// export table by an ordered list of naming-convention rules.
//
// The policy is a pure function: the same (export table, handler name,
// kind) always selects the same callable. Where a rule says "first
// export", exports are considered in sorted name order so the choice
// does not depend on map iteration. Exhausting every rule produces a
// NotFoundError that enumerates each name attempted, which is the
// message a developer sees when their export is misspelled.
package resolve
