// Package store provides persistence for care-gateway.
//
// # Overview
//
// The store package is the system of record for patients, their message
// history and professional accounts. All other components treat the store
// as the authority: the live viewer fan-out is an optimization layered on
// top and never a substitute for reading history from here.
//
// # Entities
//
//   - Patient: identified by a stable external address (WhatsApp number),
//     created on first inbound message, carries the control mode gating
//     automated replies.
//   - Message: append-only conversation entries, totally ordered per
//     patient by server-assigned timestamp. The alert flag is the only
//     mutable field and is cleared exactly once when a professional reads
//     the conversation.
//   - Professional: panel login accounts (email + bcrypt hash).
//
// # Implementation
//
// SQLiteStore implements Store using modernc.org/sqlite with WAL mode.
// The schema is created automatically on startup.
package store
