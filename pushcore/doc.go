// Package pushcore implements the push dispatch core of a service-registry
// session server: it turns a noisy stream of push intents from data-center
// fetch pipelines into an orderly, debounced, retried sequence of actual
// pushes to subscribing clients.
//
// The core owns four pieces of shared state — a pending buffer that
// coalesces rapidly arriving intents, an in-flight registry that enforces
// at-most-one-push-per-destination, a watchdog that drains the pending
// buffer on a timer, and a keyed dispatcher that serializes delivery per
// destination — and wires them together behind a single constructor,
// NewCore. Everything outside those four pieces (the subscription store,
// the data-center fetch pipeline, the merge/encode step, and the RPC
// transport) is an external collaborator described by the interfaces in
// external.go and config.go.
package pushcore
