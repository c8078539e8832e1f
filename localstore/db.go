package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solidSpoon/DashChat/entity"
)

// DB bundles the per-kind local store adapters over one SQLite database.
type DB struct {
	sqldb *sql.DB

	Chats    *Store[*entity.Chat]
	Messages *MessageStore
	Prompts  *Store[*entity.Prompt]
}

// Open opens (or creates) the local database at path and prepares the
// schema. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	db, err := NewDB(sqldb, logger)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// NewDB wraps an existing SQLite handle, creating the schema if needed.
func NewDB(sqldb *sql.DB, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initializeSchema(sqldb); err != nil {
		return nil, err
	}

	db := &DB{sqldb: sqldb}
	db.Chats = &Store[*entity.Chat]{db: sqldb, spec: chatSpec(), logger: logger, now: nowUTC}
	db.Messages = &MessageStore{Store: Store[*entity.Message]{db: sqldb, spec: messageSpec(), logger: logger, now: nowUTC}}
	db.Prompts = &Store[*entity.Prompt]{db: sqldb, spec: promptSpec(), logger: logger, now: nowUTC}
	return db, nil
}

// Close closes the underlying database handle.
func (db *DB) Close() error { return db.sqldb.Close() }

func nowUTC() time.Time { return time.Now().UTC() }

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One logical table per entity kind, keyed by id, secondarily indexed
	// by both update stamps for the watermark and changed-since scans.
	tables := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id                 TEXT PRIMARY KEY,
			author_id          TEXT NOT NULL DEFAULT '',
			deleted            INTEGER NOT NULL DEFAULT 0,
			client_created_at  TEXT NOT NULL,
			client_updated_at  TEXT NOT NULL,
			server_created_at  TEXT NOT NULL,
			server_updated_at  TEXT NOT NULL,
			topic              TEXT NOT NULL DEFAULT '',
			pinned             INTEGER NOT NULL DEFAULT 0,
			chat_type          TEXT NOT NULL DEFAULT 'draft'
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id                 TEXT PRIMARY KEY,
			author_id          TEXT NOT NULL DEFAULT '',
			deleted            INTEGER NOT NULL DEFAULT 0,
			client_created_at  TEXT NOT NULL,
			client_updated_at  TEXT NOT NULL,
			server_created_at  TEXT NOT NULL,
			server_updated_at  TEXT NOT NULL,
			chat_id            TEXT NOT NULL,
			content            TEXT NOT NULL DEFAULT '',
			role               TEXT NOT NULL DEFAULT 'user',
			pinned             INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id                 TEXT PRIMARY KEY,
			author_id          TEXT NOT NULL DEFAULT '',
			deleted            INTEGER NOT NULL DEFAULT 0,
			client_created_at  TEXT NOT NULL,
			client_updated_at  TEXT NOT NULL,
			server_created_at  TEXT NOT NULL,
			server_updated_at  TEXT NOT NULL,
			name               TEXT NOT NULL DEFAULT '',
			content            TEXT NOT NULL DEFAULT '',
			pinned             INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_chats_client_updated ON chats(client_updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_server_updated ON chats(server_updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_client_updated ON messages(client_updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_server_updated ON messages(server_updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_client_updated ON prompts(client_updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_server_updated ON prompts(server_updated_at)`,
	}
	for _, ddl := range indexes {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func chatSpec() tableSpec[*entity.Chat] {
	return tableSpec[*entity.Chat]{
		table:     "chats",
		extraCols: []string{"topic", "pinned", "chat_type"},
		extraVals: func(c *entity.Chat) []any { return []any{c.Topic, c.Pinned, string(c.Type)} },
		extraDest: func(c *entity.Chat) []any { return []any{&c.Topic, &c.Pinned, &c.Type} },
		newRecord: func() *entity.Chat { return &entity.Chat{} },
	}
}

func messageSpec() tableSpec[*entity.Message] {
	return tableSpec[*entity.Message]{
		table:     "messages",
		extraCols: []string{"chat_id", "content", "role", "pinned"},
		extraVals: func(m *entity.Message) []any { return []any{m.ChatID, m.Content, string(m.Role), m.Pinned} },
		extraDest: func(m *entity.Message) []any { return []any{&m.ChatID, &m.Content, &m.Role, &m.Pinned} },
		newRecord: func() *entity.Message { return &entity.Message{} },
		validate: func(m *entity.Message) error {
			if strings.TrimSpace(m.ChatID) == "" {
				return fmt.Errorf("%w: message %s has empty chatId", ErrValidation, m.ID)
			}
			return nil
		},
	}
}

func promptSpec() tableSpec[*entity.Prompt] {
	return tableSpec[*entity.Prompt]{
		table:     "prompts",
		extraCols: []string{"name", "content", "pinned"},
		extraVals: func(p *entity.Prompt) []any { return []any{p.Name, p.Content, p.Pinned} },
		extraDest: func(p *entity.Prompt) []any { return []any{&p.Name, &p.Content, &p.Pinned} },
		newRecord: func() *entity.Prompt { return &entity.Prompt{} },
	}
}

// MessageStore adds chat-scoped queries on top of the generic store.
type MessageStore struct {
	Store[*entity.Message]
}

// ListActiveByChat returns the active messages of one chat.
func (s *MessageStore) ListActiveByChat(ctx context.Context, chatID string) ([]*entity.Message, error) {
	return s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE deleted = 0 AND chat_id = ?`, s.selectCols(), s.spec.table), chatID)
}

// DeleteChatCascade tombstones a chat and every message belonging to it in
// one transaction, all rows stamped with the same clientUpdatedAt so the
// cascade is observable as a single logical write.
func (db *DB) DeleteChatCascade(ctx context.Context, chat *entity.Chat) error {
	stamp := entity.FormatTime(nowUTC())

	tx, err := db.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cascade transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET deleted = 1, client_updated_at = ? WHERE id = ?`, stamp, chat.ID); err != nil {
		return fmt.Errorf("failed to tombstone chat %s: %w", chat.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET deleted = 1, client_updated_at = ? WHERE chat_id = ?`, stamp, chat.ID); err != nil {
		return fmt.Errorf("failed to tombstone messages of chat %s: %w", chat.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cascade transaction: %w", err)
	}

	chat.Deleted = true
	if chat.ClientUpdatedAt, err = entity.ParseTime(stamp); err != nil {
		return err
	}
	return nil
}
