// ABOUTME: Conversation title derivation from the first user message
// ABOUTME: Word-boundary truncation to keep listings readable

package store

import "strings"

const (
	defaultTitle   = "New Conversation"
	maxTitleLength = 60
)

// titleFromMessage derives a short conversation title from the first user
// message. Messages longer than 60 characters are truncated at a word
// boundary and suffixed with an ellipsis.
func titleFromMessage(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return defaultTitle
	}
	if len(content) <= maxTitleLength {
		return content
	}

	var b strings.Builder
	for _, word := range strings.Fields(content) {
		// +1 for the joining space, leaving room for the "..." suffix
		if b.Len()+len(word)+1 > maxTitleLength-3 {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	title := b.String()
	if title == "" {
		return defaultTitle
	}
	return title + "..."
}
