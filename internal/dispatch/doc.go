// Package dispatch defines the contract between a session controller and
// the upstream agent backend, plus the HTTP/SSE implementation of it.
//
// # Overview
//
// A Dispatcher takes one user message with the prior timeline and returns a
// Reply. Backends that stream answer with a channel of Events; backends that
// resolve a single value answer with Text set and Stream nil.
//
// # Event Semantics
//
// KindAgentResponse events carry the complete content so far, not a delta.
// Consumers overwrite their target with each event; the last value wins, and
// replaying an event is harmless. KindStatus events are progress chatter and
// never land in a timeline. KindError terminates the feed.
//
// # HTTP Dispatcher
//
// HTTPDispatcher posts JSON to the upstream /api/chat endpoint and decodes
// the Server-Sent Events body:
//
//	event: agent_response
//	data: {"content":"Hello there","agent":"writer","is_final":true}
//
// A `data: [DONE]` line or the end of the body closes the stream. An
// application/json response is decoded as a single-value reply instead.
//
// # Usage
//
//	d := dispatch.NewHTTPDispatcher("http://localhost:9000", 2*time.Minute, logger)
//	reply, err := d.Send(ctx, "Hello", history)
//	if err != nil {
//	    return err
//	}
//	for ev := range reply.Stream {
//	    // apply ev
//	}
package dispatch
