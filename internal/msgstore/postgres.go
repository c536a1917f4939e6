// Package msgstore persists the conversation record — text messages and
// images — in PostgreSQL and exposes it as the [capability.MessageStore]
// collaborator.
package msgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kryptik-dev/omni/internal/capability"
)

// Schema is the SQL DDL for the messages table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
    id         BIGSERIAL PRIMARY KEY,
    role       TEXT NOT NULL,
    body       TEXT NOT NULL DEFAULT '',
    image      BYTEA,
    image_mime TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [capability.MessageStore] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ capability.MessageStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store over an existing connection or pool. The
// caller is responsible for calling [PostgresStore.Migrate] before issuing
// queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a pgx pool for dsn, verifies it with a ping, and returns a
// migrated store plus the pool for lifecycle management.
func Connect(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("msgstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("msgstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("msgstore: ping: %w", err)
	}

	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("msgstore: migrate: %w", err)
	}
	return nil
}

// ListTextMessages implements capability.MessageStore. Messages are returned
// oldest first; image-only rows are skipped.
func (s *PostgresStore) ListTextMessages(ctx context.Context) ([]capability.StoredMessage, error) {
	const query = `
		SELECT id::text, role, body
		FROM messages
		WHERE body <> ''
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("msgstore: list: %w", err)
	}
	defer rows.Close()

	var msgs []capability.StoredMessage
	for rows.Next() {
		var m capability.StoredMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Text); err != nil {
			return nil, fmt.Errorf("msgstore: list scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgstore: list: %w", err)
	}
	return msgs, nil
}

// EditMessage implements capability.MessageStore.
func (s *PostgresStore) EditMessage(ctx context.Context, id, newText string) error {
	const query = `
		UPDATE messages SET body = $2
		WHERE id::text = $1
		RETURNING id`

	var got int64
	err := s.db.QueryRow(ctx, query, id, newText).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return capability.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgstore: edit %q: %w", id, err)
	}
	return nil
}

// RecordReply implements capability.MessageStore, storing text under the
// "assistant" role.
func (s *PostgresStore) RecordReply(ctx context.Context, text string) (string, error) {
	const query = `
		INSERT INTO messages (role, body) VALUES ('assistant', $1)
		RETURNING id::text`

	var id string
	if err := s.db.QueryRow(ctx, query, text).Scan(&id); err != nil {
		return "", fmt.Errorf("msgstore: record reply: %w", err)
	}
	return id, nil
}

// RecordImage stores encoded image bytes with their MIME type and returns the
// new message id. Image rows carry an empty body and never appear in
// [PostgresStore.ListTextMessages].
func (s *PostgresStore) RecordImage(ctx context.Context, role string, data []byte, mimeType string) (string, error) {
	const query = `
		INSERT INTO messages (role, image, image_mime) VALUES ($1, $2, $3)
		RETURNING id::text`

	var id string
	if err := s.db.QueryRow(ctx, query, role, data, mimeType).Scan(&id); err != nil {
		return "", fmt.Errorf("msgstore: record image: %w", err)
	}
	return id, nil
}

// LatestImage implements capability.MessageStore.
func (s *PostgresStore) LatestImage(ctx context.Context) ([]byte, string, error) {
	const query = `
		SELECT image, image_mime
		FROM messages
		WHERE image IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var data []byte
	var mimeType string
	err := s.db.QueryRow(ctx, query).Scan(&data, &mimeType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("msgstore: no stored image: %w", capability.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("msgstore: latest image: %w", err)
	}
	return data, mimeType, nil
}
