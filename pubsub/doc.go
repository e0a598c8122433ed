// Package pubsub carries the tagged records and state transitions of
// running units to their consumers.
//
// A Broker hands out Topics; a Topic fans events out to subscribed
// Hooks. Two brokers ship with the package: Local, an in-process fan-out
// with slow-subscriber eviction, and NATS, which puts the same events on
// the wire for out-of-process consumers.
//
// The Sink sits on top: it is the single ordered destination a pool of
// concurrent units multiplexes into. Appends are concurrent-safe,
// arrival order is what consumers observe, and Finalize fires exactly
// once when the pool has drained.
package pubsub
