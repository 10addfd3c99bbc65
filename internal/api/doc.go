// Package api exposes chat sessions over HTTP.
//
// # Endpoints
//
//   - POST /api/send: submit a user message; session updates stream back as
//     SSE (tail overwrites, then a final "done" with the conversation id)
//   - GET /api/conversations?user_id=: list a user's conversations
//   - GET /api/conversations/{id}?user_id=: full conversation record
//   - POST /api/conversations/clear: reset the session and drop history
//   - GET /api/products, GET /api/products/{sku}: product catalog lookups
//
// # Sessions
//
// The Gateway keeps one session controller per user id, created lazily.
// Controller hooks feed the Broadcaster, which fans updates out to any SSE
// response currently mirroring that user's session.
//
// # Idempotency
//
// Send requests may carry an idempotency_key. A key seen within the dedupe
// TTL short-circuits with {"status":"duplicate"} and no dispatch.
package api
