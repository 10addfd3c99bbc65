// Package controller implements the conversational session controller: one
// instance owns one user's chat timeline, loads saved conversations from
// the store, and consumes the incremental response feed for each send.
//
// # Concurrency model
//
// All session state is mutated under the controller's lock, giving the same
// guarantees as the single cooperative timeline the design assumes: messages
// are only appended or tail-updated, never reordered, and no two mutations
// interleave.
//
// Asynchronous work (a load, a streaming send) captures the controller's
// generation when it starts. The generation advances on every identity
// change and on new-conversation identity assignment, so any completion
// from a superseded episode is detected as stale and silently dropped: a
// late load of conversation A can never overwrite the timeline after the
// user has switched to conversation B.
//
// # Send lifecycle
//
//	Idle -> UserAppended -> PlaceholderOpen -> Streaming -> Settled
//
// A send appends the user message, opens an empty assistant placeholder,
// and applies each agent_response event as a whole-value overwrite of that
// placeholder (events carry the complete content so far, not deltas). On
// settle the full timeline is persisted fire-and-forget. Every exit path,
// including failures and timeouts, re-enables input.
//
// # Guard flag
//
// The first successful send of a new conversation assigns the identity
// itself. The guard flag is held across that assignment so the loader never
// refetches a conversation the stream consumer just built.
package controller
