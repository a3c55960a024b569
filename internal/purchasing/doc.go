// Package purchasing implements the store that coordinates catalog refreshes
// and purchases against the asynchronous commerce web API.
//
// ARCHITECTURE:
//
// Pending operation:
// The store holds at most one pending operation: a catalog refresh or a
// purchase. Starting another while one is pending returns a
// *PreconditionError and changes nothing; requests are never queued.
//
// Correlation by state:
// Outbound calls are fire-and-forget. Every notification handler consults
// the pending operation to decide what the notification means. A
// notification that no pending operation wants is logged and dropped.
//
// Fan-out:
// The catalog flow and the purchase flow subscribe to ownership
// notifications independently. Each is offered every ownership batch and
// acts only on its own pending state.
//
// Cleanup:
// Pending markers and cached batches are cleared in deferred calls, so every
// terminal path resets the store, including a callback that panics.
//
// Thread-safety:
// Store is not safe for concurrent use. Call it and deliver notifications
// from a single goroutine, normally the webapi.Loop.
//
// Known gaps:
// There is no timeout. If the API never answers, the operation stays pending.
// Transaction ids are synthesized from owned-instance ids and are not unique
// across purchases that resolve to the same ownership data.
package purchasing
