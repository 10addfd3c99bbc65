// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject failures and latency

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// GetErr/SaveErr inject failures; GetGate, when non-nil, blocks
// GetConversation until the channel is closed (for racing loads in tests).
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	products      map[string]*Product      // keyed by SKU

	GetErr   error
	SaveErr  error
	ClearErr error
	GetGate  chan struct{}
	GateID   string // when set, only loads of this conversation block on GetGate

	GetCalls  int
	SaveCalls int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		products:      make(map[string]*Product),
	}
}

// Put seeds a conversation directly, bypassing save bookkeeping.
func (m *MockStore) Put(conv *Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *conv
	m.conversations[c.ID] = &c
}

// GetConversation retrieves a conversation by ID and owner.
func (m *MockStore) GetConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	m.mu.Lock()
	m.GetCalls++
	gate := m.GetGate
	if m.GateID != "" && m.GateID != id {
		gate = nil
	}
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	result := *c
	result.Messages = append([]Message(nil), c.Messages...)
	return &result, nil
}

// SaveConversation upserts a conversation, deriving a title like the real store.
func (m *MockStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}

	c := *conv
	c.Messages = append([]Message(nil), conv.Messages...)
	now := time.Now()
	if existing, ok := m.conversations[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
		if c.Title == "" {
			c.Title = existing.Title
		}
		if len(c.Brief) == 0 {
			c.Brief = existing.Brief
		}
		if len(c.Metadata.GeneratedContent) == 0 {
			c.Metadata.GeneratedContent = existing.Metadata.GeneratedContent
		}
		if c.Metadata.Status == "" {
			c.Metadata.Status = existing.Metadata.Status
		}
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.Title == "" || c.Title == defaultTitle {
		for _, msg := range c.Messages {
			if msg.Role == "user" {
				c.Title = titleFromMessage(msg.Content)
				break
			}
		}
		if c.Title == "" {
			c.Title = defaultTitle
		}
	}
	c.UpdatedAt = now
	m.conversations[c.ID] = &c
	return nil
}

// ListConversations lists a user's conversations newest-activity first.
func (m *MockStore) ListConversations(ctx context.Context, userID string, limit int) ([]*ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var out []*ConversationSummary
	for _, c := range m.conversations {
		if c.UserID != userID {
			continue
		}
		out = append(out, &ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: len(c.Messages),
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClearConversations deletes all conversations owned by the user.
func (m *MockStore) ClearConversations(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	for id, c := range m.conversations {
		if c.UserID == userID {
			delete(m.conversations, id)
		}
	}
	return nil
}

// GetProductBySKU retrieves a product by SKU.
func (m *MockStore) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[sku]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// GetProductsByCategory returns products matching the category filters.
func (m *MockStore) GetProductsByCategory(ctx context.Context, category, subCategory string, limit int) ([]*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	var out []*Product
	for _, p := range m.products {
		if p.Category != category {
			continue
		}
		if subCategory != "" && p.SubCategory != subCategory {
			continue
		}
		cp := *p
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SearchProducts matches the term against names and descriptions.
func (m *MockStore) SearchProducts(ctx context.Context, term string, limit int) ([]*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(term)
	var out []*Product
	for _, p := range m.products {
		haystack := strings.ToLower(p.Name + " " + p.MarketingDescription + " " + p.DetailedSpecDescription)
		if !strings.Contains(haystack, needle) {
			continue
		}
		cp := *p
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpsertProduct stores a product keyed by SKU.
func (m *MockStore) UpsertProduct(ctx context.Context, product *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *product
	p.UpdatedAt = time.Now()
	m.products[p.SKU] = &p
	return nil
}

// ListProducts returns up to limit products.
func (m *MockStore) ListProducts(ctx context.Context, limit int) ([]*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []*Product
	for _, p := range m.products {
		cp := *p
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error { return nil }
