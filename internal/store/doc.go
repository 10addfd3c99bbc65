// Package store provides persistence for conversations and the product
// catalog.
//
// # Overview
//
// The store is the remote side of the session controller: conversations are
// saved as full records (ordered messages plus the pending creative brief
// and generated-content metadata) and loaded wholesale on a switch. The
// product catalog backs the assistant's product lookups.
//
// # Implementations
//
//   - SQLiteStore: production implementation using modernc.org/sqlite with
//     automatic schema creation and WAL mode
//   - MockStore: in-memory implementation for tests, with failure and
//     latency injection
//
// # Conventions
//
// Missing entities return ErrNotFound. Brief and generated-content payloads
// are opaque JSON; the store never inspects them. Conversation titles are
// derived from the first user message when not set explicitly.
package store
