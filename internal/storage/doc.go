// Package storage persists pinned messages and per-user delivery state.
//
// It is backed by a single SQLite database file:
//   - pinned_messages: broadcastable content units, at most one active
//     (enforced by a partial unique index and transactional flips)
//   - users: the recipient base; last_delivered_message_id is the
//     idempotent delivery marker
package storage
