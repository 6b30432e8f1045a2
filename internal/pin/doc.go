// Package pin maintains the single pinned broadcast message and fans its
// state changes out to the whole recipient base.
//
// Concepts
//
// A PinnedMessage (internal/storage) is the broadcastable content unit; at
// most one is active at a time. Admin operations (create, activate,
// broadcast, deactivate, mass unpin) go through Service, which throttles
// mass operations with a cooldown Gate, mutates message state first, and
// then drives the per-recipient Engine over a fully materialized recipient
// snapshot with bounded concurrency, chunked pacing, and rate-limit-aware
// retry.
//
// Delivery semantics
//
// Fan-out is best-effort: individual recipient failures are counted, never
// raised. The per-user last_delivered_message_id marker suppresses
// redundant redelivery of the same message version.
package pin
