package protocol

import "sync/atomic"

// IDCounter hands out request ids for one worker connection.
//
// Ids only need to be unique within a single worker's lifetime - the
// response correlates against the id the host sent, and a worker serves
// one request at a time - but they are strictly increasing anyway so
// that logs read in causal order.
//
// Thread-safety: safe for concurrent use (atomic operations), although
// the pool checks a worker out exclusively before issuing requests.
type IDCounter struct {
	seq atomic.Int64
}

// NewIDCounter creates a counter starting at 0; the first Next is 1.
func NewIDCounter() *IDCounter {
	return &IDCounter{}
}

// Next returns the next request id.
func (c *IDCounter) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the most recently issued id without advancing.
func (c *IDCounter) Current() int64 {
	return c.seq.Load()
}
