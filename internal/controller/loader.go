// ABOUTME: Conversation loader: fetches a saved conversation and installs its timeline
// ABOUTME: Generation-tagged so a superseded load can never clobber a newer conversation

package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/muse-gateway/internal/session"
	"github.com/2389/muse-gateway/internal/store"
)

// Switch makes the given conversation the active one. An empty id starts a
// new chat. A non-empty id that differs from the materialized timeline
// triggers a load, which replaces the timeline wholesale on success.
//
// Load failures are not fatal: a missing conversation leaves the current
// timeline untouched, any other failure resets the timeline to empty rather
// than display mismatched data. A load superseded by a newer switch before
// it resolves is discarded silently.
func (c *Controller) Switch(ctx context.Context, id string) error {
	c.mu.Lock()
	if id != c.state.Identity() {
		c.gen++
		// Any load still in flight is superseded now. Its completion will be
		// discarded, so the flag must be cleared here: if this switch issues
		// no load of its own, nobody else will.
		c.state.SetLoading(false)
	}
	c.state.SetIdentity(id)

	if c.guard {
		// The in-flight send is establishing this identity itself.
		c.logger.Debug("load suppressed by guard", "conversation_id", id)
		c.mu.Unlock()
		return nil
	}
	if !c.state.NeedsLoad() {
		c.mu.Unlock()
		return nil
	}

	gen := c.gen
	c.state.SetLoading(true)
	c.mu.Unlock()

	c.logger.Debug("loading conversation", "conversation_id", id)
	conv, err := c.store.GetConversation(ctx, id, c.userID)
	return c.applyLoad(gen, id, conv, err)
}

// applyLoad installs a completed load, unless its generation is stale.
func (c *Controller) applyLoad(gen uint64, id string, conv *store.Conversation, err error) error {
	c.mu.Lock()
	if gen != c.gen {
		// A newer switch owns the session now; this result must not land.
		c.mu.Unlock()
		c.logger.Debug("stale load discarded", "conversation_id", id)
		return nil
	}
	c.state.SetLoading(false)

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.mu.Unlock()
			c.logger.Warn("conversation not found, keeping current timeline", "conversation_id", id)
			return nil
		}
		// Reset rather than keep a timeline that no longer matches the identity.
		c.state.ReplaceAll(nil)
		c.brief = nil
		c.generated = nil
		c.mu.Unlock()
		c.logger.Error("conversation load failed, timeline reset", "conversation_id", id, "error", err)
		return fmt.Errorf("loading conversation %s: %w", id, err)
	}

	c.state.ReplaceAll(toSessionMessages(conv.Messages))
	c.state.MarkMaterialized(id)
	c.brief = conv.Brief
	c.generated = conv.Metadata.GeneratedContent
	brief := conv.Brief
	confirmed := conv.Metadata.Status == StatusBriefConfirmed
	generated := conv.Metadata.GeneratedContent
	c.mu.Unlock()

	c.logger.Debug("conversation loaded", "conversation_id", id, "messages", len(conv.Messages))

	if len(brief) > 0 && c.hooks.OnBriefLoaded != nil {
		c.hooks.OnBriefLoaded(brief, confirmed)
	}
	if len(generated) > 0 && c.hooks.OnGeneratedContentLoaded != nil {
		c.hooks.OnGeneratedContentLoaded(generated)
	}
	return nil
}

func toSessionMessages(in []store.Message) []session.Message {
	out := make([]session.Message, 0, len(in))
	for _, m := range in {
		out = append(out, session.Message{
			Role:      session.Role(m.Role),
			Content:   m.Content,
			Agent:     m.Agent,
			Timestamp: m.CreatedAt,
		})
	}
	return out
}

func toStoreMessages(in []session.Message) []store.Message {
	out := make([]store.Message, 0, len(in))
	for _, m := range in {
		out = append(out, store.Message{
			Role:      string(m.Role),
			Content:   m.Content,
			Agent:     m.Agent,
			CreatedAt: m.Timestamp,
		})
	}
	return out
}
