// ABOUTME: Store interface and data types for conversation and product persistence
// ABOUTME: Defines Conversation, Message, Product structs and sentinel errors

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Message is one persisted entry of a conversation timeline.
type Message struct {
	Role      string
	Content   string
	Agent     string
	CreatedAt time.Time
}

// Metadata carries the non-message payloads a conversation accumulates.
// Both payloads are opaque to the store.
type Metadata struct {
	GeneratedContent json.RawMessage
	Status           string
}

// Conversation is a full persisted conversation record.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Messages  []Message
	Brief     json.RawMessage // pending creative brief, nil when absent
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationSummary is the listing shape: metadata without messages.
type ConversationSummary struct {
	ID           string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Product is one entry of the product catalog. Data holds any fields the
// catalog source carries beyond the indexed columns.
type Product struct {
	SKU                     string
	Name                    string
	Category                string
	SubCategory             string
	MarketingDescription    string
	DetailedSpecDescription string
	Data                    json.RawMessage
	UpdatedAt               time.Time
}

// Store defines the interface for conversation and product persistence
type Store interface {
	// Conversations
	GetConversation(ctx context.Context, id, userID string) (*Conversation, error)
	SaveConversation(ctx context.Context, conv *Conversation) error
	ListConversations(ctx context.Context, userID string, limit int) ([]*ConversationSummary, error)
	ClearConversations(ctx context.Context, userID string) error

	// Products
	GetProductBySKU(ctx context.Context, sku string) (*Product, error)
	GetProductsByCategory(ctx context.Context, category, subCategory string, limit int) ([]*Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]*Product, error)
	UpsertProduct(ctx context.Context, product *Product) error
	ListProducts(ctx context.Context, limit int) ([]*Product, error)

	// Close releases any resources held by the store
	Close() error
}
