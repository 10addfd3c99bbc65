// Package session holds the state of one chat session: the active
// conversation identity, the ordered message timeline, and the flags that
// gate loading and sending.
//
// # Ownership
//
// A State is exclusively owned by its controller. All mutation goes through
// the defined operations (SetIdentity, Clear, AppendUser,
// OpenAssistantPlaceholder, UpdateAt, ReplaceAll); the struct itself does no
// locking.
//
// # Timeline rules
//
// Messages are only ever appended or tail-updated, never reordered. Exactly
// one mutable message exists at a time: the assistant placeholder at the
// tail, while its stream is unresolved. A load replaces the timeline
// wholesale; merging loaded messages into an existing timeline is never
// allowed.
package session
