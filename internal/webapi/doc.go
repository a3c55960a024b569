// Package webapi describes the commerce web API that the purchasing store talks to.
//
// The API is fire-and-forget: outbound calls (RequestItemList, RequestUserItemList,
// PurchaseItems) return immediately and their results arrive later as independent
// notifications. Notifications may be unordered, duplicated or unsolicited.
//
// ARCHITECTURE:
//
// Bus:
// Subscription registry. Publish delivers one notification to every handler
// subscribed to its kind, in subscription order (fan-out). No handler claims a
// notification for itself.
//
// Loop:
// Single-writer event loop. Notifications and caller work are queued FIFO and
// processed one turn at a time in the goroutine running Run (or Drain). Each turn
// runs to completion before the next starts, so consumers need no locks.
//
// Simulator:
// In-memory backend implementing API. It answers outbound calls by enqueueing
// notifications on the loop, never by calling back synchronously.
package webapi
