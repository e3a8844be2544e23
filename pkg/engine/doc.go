// Package engine implements the action execution engine: it accepts a
// stream of heterogeneous, possibly-streamed actions emitted by an external
// producer and executes them, in order, against a sandboxed execution
// environment.
//
// # Execution model
//
// All actions are serialized onto a single logical queue per engine
// instance. Exactly one action body executes at a time, in strict arrival
// (FIFO) order. Detached start actions are the only exception to "blocks
// until settled": their dispatch still happens in FIFO order, and the queue
// is held back by a fixed grace delay before the next action begins.
//
// # Lifecycle
//
// Each action moves through the state machine
//
//	pending -> running -> complete | aborted | failed
//
// Transitions are monotonic; no action leaves a terminal state. While a
// file action is still streaming content from the producer, running is
// re-entered without re-execution: the payload is replaced and the single
// write happens once streaming ends. Every action owns an independent
// cancellation signal; an aborted action is never classified or alerted as
// a failure.
//
// # Collaborators
//
// The engine consumes the sandbox, shell and write-guard interfaces from
// the sandbox and guard packages, classifies handler failures through the
// classify package, and forwards structured alerts to an injected sink
// without ever blocking on it.
package engine
