// ABOUTME: Tests for session State timeline operations
// ABOUTME: Covers append/update rules, identity switching, and clear semantics

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_StartsAsNewChat(t *testing.T) {
	s := NewState()

	assert.True(t, s.IsNewChat())
	assert.Equal(t, "", s.Identity())
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.NeedsLoad())
}

func TestAppendUser_IgnoresWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		appended bool
	}{
		{"empty", "", false},
		{"spaces", "   ", false},
		{"tabs and newlines", "\t\n ", false},
		{"real text", "Hello", true},
		{"text with padding", "  Hello  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			got := s.AppendUser(tt.text)
			assert.Equal(t, tt.appended, got)
			if tt.appended {
				require.Equal(t, 1, s.Len())
				assert.Equal(t, RoleUser, s.Messages()[0].Role)
				assert.Equal(t, tt.text, s.Messages()[0].Content)
			} else {
				assert.Equal(t, 0, s.Len())
			}
		})
	}
}

func TestOpenAssistantPlaceholder_ReturnsTailIndex(t *testing.T) {
	s := NewState()
	s.AppendUser("Hello")

	idx := s.OpenAssistantPlaceholder()

	require.Equal(t, 1, idx)
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "", msgs[1].Content)
}

func TestUpdateAt_OnlyWritesTheTail(t *testing.T) {
	s := NewState()
	s.AppendUser("Hello")
	idx := s.OpenAssistantPlaceholder()

	require.True(t, s.UpdateAt(idx, "partial", "writer"))
	require.True(t, s.UpdateAt(idx, "complete answer", "writer"))

	msgs := s.Messages()
	assert.Equal(t, "complete answer", msgs[idx].Content)
	assert.Equal(t, "writer", msgs[idx].Agent)

	// A stale index (no longer the tail) must be a no-op.
	s.AppendUser("follow-up")
	assert.False(t, s.UpdateAt(idx, "late write", "writer"))
	assert.Equal(t, "complete answer", s.Messages()[idx].Content)
}

func TestUpdateAt_EmptyTimeline(t *testing.T) {
	s := NewState()
	assert.False(t, s.UpdateAt(0, "x", ""))
	assert.False(t, s.UpdateAt(-1, "x", ""))
}

func TestSetIdentity_EmptyResetsToNewChat(t *testing.T) {
	s := NewState()
	s.SetIdentity("conv-a")
	s.MarkMaterialized("conv-a")
	s.AppendUser("Hello")

	s.SetIdentity("")

	assert.True(t, s.IsNewChat())
	assert.Equal(t, "", s.Identity())
	assert.Equal(t, 0, s.Len())
}

func TestNeedsLoad(t *testing.T) {
	s := NewState()

	// Picking a saved conversation ends new-chat mode and requires a load.
	s.SetIdentity("conv-a")
	assert.False(t, s.IsNewChat())
	assert.True(t, s.NeedsLoad())

	s.MarkMaterialized("conv-a")
	assert.False(t, s.NeedsLoad())

	// Switching to a different saved conversation requires a load.
	s.SetIdentity("conv-b")
	assert.True(t, s.NeedsLoad())

	s.MarkMaterialized("conv-b")
	assert.False(t, s.NeedsLoad())
}

func TestReplaceAll_SwapsWholesale(t *testing.T) {
	s := NewState()
	s.AppendUser("old")
	s.OpenAssistantPlaceholder()

	loaded := []Message{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "two"},
		{Role: RoleUser, Content: "three"},
	}
	s.ReplaceAll(loaded)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	// The returned slice is a copy; mutating it must not touch the state.
	msgs[0].Content = "mutated"
	assert.Equal(t, "one", s.Messages()[0].Content)
}

func TestClear_ResetsEverything(t *testing.T) {
	s := NewState()
	s.SetIdentity("conv-a")
	s.MarkMaterialized("conv-a")
	s.AppendUser("Hello")
	s.SetTyping(true)

	s.Clear()

	assert.Equal(t, "", s.Identity())
	assert.True(t, s.IsNewChat())
	assert.Equal(t, 0, s.Len())

	// Clearing forgets the materialized identity so a later switch back
	// to the same conversation reloads it.
	s.SetIdentity("conv-a")
	assert.True(t, s.NeedsLoad())
}
