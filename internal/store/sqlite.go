// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/product persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		brief TEXT,
		generated_content TEXT,
		status TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		agent TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (conversation_id, seq),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS products (
		sku TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		sub_category TEXT NOT NULL DEFAULT '',
		marketing_description TEXT NOT NULL DEFAULT '',
		detailed_spec_description TEXT NOT NULL DEFAULT '',
		data TEXT,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category, sub_category);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetConversation returns the full conversation record including messages,
// or ErrNotFound. The userID must match the owner recorded at save time.
func (s *SQLiteStore) GetConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	conv := &Conversation{}
	var brief, generated sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, brief, generated_content, status, created_at, updated_at
		FROM conversations WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &brief, &generated,
			&conv.Metadata.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	if brief.Valid && brief.String != "" {
		conv.Brief = []byte(brief.String)
	}
	if generated.Valid && generated.String != "" {
		conv.Metadata.GeneratedContent = []byte(generated.String)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, agent, content, created_at
		FROM conversation_messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Agent, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return conv, nil
}

// SaveConversation upserts a conversation record. The message list replaces
// what is stored; an existing row keeps its created_at and any title already
// assigned. A missing title is derived from the first user message.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" || conv.UserID == "" {
		return fmt.Errorf("conversation id and user id are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	createdAt := conv.CreatedAt
	title := conv.Title
	var existingBrief, existingGenerated sql.NullString
	var existingStatus string

	var existingCreated time.Time
	var existingTitle string
	err = tx.QueryRowContext(ctx,
		`SELECT created_at, title, brief, generated_content, status
		 FROM conversations WHERE id = ? AND user_id = ?`,
		conv.ID, conv.UserID).Scan(&existingCreated, &existingTitle,
		&existingBrief, &existingGenerated, &existingStatus)
	switch err {
	case nil:
		createdAt = existingCreated
		if title == "" {
			title = existingTitle
		}
	case sql.ErrNoRows:
		if createdAt.IsZero() {
			createdAt = now
		}
	default:
		return fmt.Errorf("looking up conversation: %w", err)
	}

	if title == "" || title == defaultTitle {
		for _, m := range conv.Messages {
			if m.Role == "user" {
				title = titleFromMessage(m.Content)
				break
			}
		}
		if title == "" {
			title = defaultTitle
		}
	}

	// A save that omits the brief, generated content, or status keeps what is
	// already on record; a messages-only save must not erase metadata.
	brief := nullableJSON(conv.Brief)
	if !brief.Valid && existingBrief.Valid {
		brief = existingBrief
	}
	generated := nullableJSON(conv.Metadata.GeneratedContent)
	if !generated.Valid && existingGenerated.Valid {
		generated = existingGenerated
	}
	status := conv.Metadata.Status
	if status == "" {
		status = existingStatus
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, brief, generated_content, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			brief = excluded.brief,
			generated_content = excluded.generated_content,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		conv.ID, conv.UserID, title, brief,
		generated, status, createdAt, now)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clearing old messages: %w", err)
	}
	for i, m := range conv.Messages {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (conversation_id, seq, role, agent, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			conv.ID, i, m.Role, m.Agent, m.Content, createdAt); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	s.logger.Debug("conversation saved",
		"conversation_id", conv.ID,
		"user_id", conv.UserID,
		"messages", len(conv.Messages))
	return nil
}

// ListConversations returns the user's conversations newest-activity first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, limit int) ([]*ConversationSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM conversation_messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.user_id = ?
		ORDER BY c.updated_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*ConversationSummary
	for rows.Next() {
		cs := &ConversationSummary{}
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.CreatedAt, &cs.UpdatedAt, &cs.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ClearConversations deletes all conversations owned by the user.
func (s *SQLiteStore) ClearConversations(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clearing conversations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("conversations cleared", "user_id", userID, "count", n)
	}
	return nil
}

// GetProductBySKU returns a product by SKU, or ErrNotFound.
func (s *SQLiteStore) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT sku, name, category, sub_category, marketing_description, detailed_spec_description, data, updated_at
		FROM products WHERE sku = ?`, sku))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying product: %w", err)
	}
	return p, nil
}

// GetProductsByCategory returns products in a category, optionally narrowed
// by sub-category.
func (s *SQLiteStore) GetProductsByCategory(ctx context.Context, category, subCategory string, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT sku, name, category, sub_category, marketing_description, detailed_spec_description, data, updated_at
		FROM products WHERE category = ?`
	args := []any{category}
	if subCategory != "" {
		query += ` AND sub_category = ?`
		args = append(args, subCategory)
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	return s.queryProducts(ctx, query, args...)
}

// SearchProducts matches the term against product names and descriptions,
// case-insensitively.
func (s *SQLiteStore) SearchProducts(ctx context.Context, term string, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(term) + "%"
	return s.queryProducts(ctx, `
		SELECT sku, name, category, sub_category, marketing_description, detailed_spec_description, data, updated_at
		FROM products
		WHERE LOWER(name) LIKE ?
		   OR LOWER(marketing_description) LIKE ?
		   OR LOWER(detailed_spec_description) LIKE ?
		LIMIT ?`, pattern, pattern, pattern, limit)
}

// UpsertProduct creates or replaces a product keyed by SKU.
func (s *SQLiteStore) UpsertProduct(ctx context.Context, product *Product) error {
	if product.SKU == "" {
		return fmt.Errorf("product sku is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, sub_category, marketing_description, detailed_spec_description, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			sub_category = excluded.sub_category,
			marketing_description = excluded.marketing_description,
			detailed_spec_description = excluded.detailed_spec_description,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		product.SKU, product.Name, product.Category, product.SubCategory,
		product.MarketingDescription, product.DetailedSpecDescription,
		nullableJSON(product.Data), time.Now())
	if err != nil {
		return fmt.Errorf("upserting product: %w", err)
	}
	return nil
}

// ListProducts returns up to limit products.
func (s *SQLiteStore) ListProducts(ctx context.Context, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryProducts(ctx, `
		SELECT sku, name, category, sub_category, marketing_description, detailed_spec_description, data, updated_at
		FROM products LIMIT ?`, limit)
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]*Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	p := &Product{}
	var data sql.NullString
	err := row.Scan(&p.SKU, &p.Name, &p.Category, &p.SubCategory,
		&p.MarketingDescription, &p.DetailedSpecDescription, &data, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		p.Data = []byte(data.String)
	}
	return p, nil
}

func nullableJSON(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
