// Package executor is the engine of the execution core: it moves single
// units of interpreted work to a terminal state under a configurable
// thread policy, and carries the synchronization primitives the rest of
// the module builds on.
//
// Design decisions:
//   - One-shot latches: Signal records a terminal outcome exactly once
//     under arbitrary concurrent completions; the completion callback is
//     fixed at construction so there is no subscription state to race on
//   - Per-session stop stacks: StopStack totally orders push/pop/stop
//     under one coarse lock, held only for bookkeeping and never across
//     a frame's stop function
//   - Thread policies: dedicated goroutine, a long-lived reusable worker
//     with a single-slot handoff, or the caller's own goroutine; the
//     three are indistinguishable from the unit's point of view
//   - Cooperative cancellation: stop requests cancel contexts and force
//     close input sources; nothing is ever forcibly terminated
//   - Future/Promise: typed results settle exactly once and decode
//     lazily on first Get
//
// Key components:
//
//   - Signal: one-shot completion latch
//     ├── Complete: first writer wins, wakes all waiters
//     ├── Release: signal without firing the callback
//     └── Wait / WaitContext: block for the terminal outcome
//
//   - StopStack: per-session cancellation bookkeeping
//     ├── Push: register a running unit, fails once stopping
//     ├── Pop: deregister, a deliberate no-op while stopping
//     └── Stop: idempotent mark + snapshot, signal outside the lock
//
//   - Local: the pipeline executor
//     ├── Start / Run: schedule a unit under a thread policy
//     ├── StopPipeline: cooperative stop, blocks until terminal
//     └── Shutdown: retire the reusable worker
//
// The package is internal: embedders go through the root package, which
// wires session factories, sinks and hooks around this engine.
package executor
