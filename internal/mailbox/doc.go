// Package mailbox implements the per-key FIFO text buffer that decouples
// the conversation bridge (producer) from a polling RPA job (consumer),
// plus the HTTP service boundary the job polls.
//
// # Semantics
//
// Every buffer is identified by a string key. A key that was never written
// to is indistinguishable from one that has been drained: both report
// empty, and there is no "not found" error anywhere in the API. Dequeue
// returns the oldest element; two concurrent dequeues on the same key can
// never observe the same element.
//
// # Keying modes
//
// The HTTP service runs in one of two deployment modes, selected by
// configuration: a single global buffer under a fixed default key, or
// per-caller buffers keyed by the id field of the request body. Exactly
// one mode is active per process.
//
// # Capacity
//
// Buffers are unbounded by default, matching the observed deployment. An
// optional per-key capacity with a reject or drop-oldest policy can be
// configured to cap growth.
package mailbox
