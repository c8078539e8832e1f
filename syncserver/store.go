package syncserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solidSpoon/DashChat/entity"
)

// SyncStore is the owner-scoped server-side store behind the HTTP
// handlers. Upserts apply the push-phase rule: update only when the stored
// clientUpdatedAt is strictly older than the incoming one; stale pushes
// are ignored, not errors.
type SyncStore interface {
	ListChats(ctx context.Context, owner string, after time.Time) ([]*entity.Chat, error)
	ListMessages(ctx context.Context, owner string, after time.Time) ([]*entity.Message, error)
	ListPrompts(ctx context.Context, owner string, after time.Time) ([]*entity.Prompt, error)

	UpsertChats(ctx context.Context, owner string, recs []*entity.Chat) error
	UpsertMessages(ctx context.Context, owner string, recs []*entity.Message) error
	UpsertPrompts(ctx context.Context, owner string, recs []*entity.Prompt) error
}

const uniqueViolation = "23505"

// PGStore implements SyncStore on Postgres via pgx.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPGStore wraps a pgx pool. Run Migrate before serving traffic.
func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ListChats returns the owner's chats with serverUpdatedAt after the
// client's watermark. Tombstones are included so deletions propagate.
func (s *PGStore) ListChats(ctx context.Context, owner string, after time.Time) ([]*entity.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, author_id, deleted, client_created_at, client_updated_at,
		       server_created_at, server_updated_at, topic, pinned, chat_type
		FROM chats WHERE author_id = $1 AND server_updated_at > $2
	`, owner, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var out []*entity.Chat
	for rows.Next() {
		c := &entity.Chat{}
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.Deleted,
			&c.ClientCreatedAt, &c.ClientUpdatedAt, &c.ServerCreatedAt, &c.ServerUpdatedAt,
			&c.Topic, &c.Pinned, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) ListMessages(ctx context.Context, owner string, after time.Time) ([]*entity.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, author_id, deleted, client_created_at, client_updated_at,
		       server_created_at, server_updated_at, chat_id, content, role, pinned
		FROM messages WHERE author_id = $1 AND server_updated_at > $2
	`, owner, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*entity.Message
	for rows.Next() {
		m := &entity.Message{}
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.Deleted,
			&m.ClientCreatedAt, &m.ClientUpdatedAt, &m.ServerCreatedAt, &m.ServerUpdatedAt,
			&m.ChatID, &m.Content, &m.Role, &m.Pinned); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) ListPrompts(ctx context.Context, owner string, after time.Time) ([]*entity.Prompt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, author_id, deleted, client_created_at, client_updated_at,
		       server_created_at, server_updated_at, name, content, pinned
		FROM prompts WHERE author_id = $1 AND server_updated_at > $2
	`, owner, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	var out []*entity.Prompt
	for rows.Next() {
		p := &entity.Prompt{}
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Deleted,
			&p.ClientCreatedAt, &p.ClientUpdatedAt, &p.ServerCreatedAt, &p.ServerUpdatedAt,
			&p.Name, &p.Content, &p.Pinned); err != nil {
			return nil, fmt.Errorf("failed to scan prompt row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertChats applies the push batch. Deleted chats take the cascade path:
// the chat and all its messages are tombstoned in one transaction with
// identical server stamps, so clients pulling either entity type observe
// the cascade independently.
func (s *PGStore) UpsertChats(ctx context.Context, owner string, recs []*entity.Chat) error {
	for _, c := range recs {
		if c.Deleted {
			if err := s.deleteChatCascade(ctx, owner, c); err != nil {
				return err
			}
			continue
		}
		err := s.upsert(ctx, "chats", owner, c.ID, `
			INSERT INTO chats (id, author_id, deleted, client_created_at, client_updated_at,
				server_created_at, server_updated_at, topic, pinned, chat_type)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9)
		`, []any{c.ID, owner, c.Deleted, c.ClientCreatedAt, c.ClientUpdatedAt, s.now(), c.Topic, c.Pinned, string(c.Type)}, `
			UPDATE chats SET deleted = $3, client_created_at = $4, client_updated_at = $5,
				server_updated_at = $6, topic = $7, pinned = $8, chat_type = $9
			WHERE id = $1 AND author_id = $2 AND client_updated_at < $5
		`, []any{c.ID, owner, c.Deleted, c.ClientCreatedAt, c.ClientUpdatedAt, s.now(), c.Topic, c.Pinned, string(c.Type)})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) UpsertMessages(ctx context.Context, owner string, recs []*entity.Message) error {
	for _, m := range recs {
		err := s.upsert(ctx, "messages", owner, m.ID, `
			INSERT INTO messages (id, author_id, deleted, client_created_at, client_updated_at,
				server_created_at, server_updated_at, chat_id, content, role, pinned)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, $10)
		`, []any{m.ID, owner, m.Deleted, m.ClientCreatedAt, m.ClientUpdatedAt, s.now(), m.ChatID, m.Content, string(m.Role), m.Pinned}, `
			UPDATE messages SET deleted = $3, client_created_at = $4, client_updated_at = $5,
				server_updated_at = $6, chat_id = $7, content = $8, role = $9, pinned = $10
			WHERE id = $1 AND author_id = $2 AND client_updated_at < $5
		`, []any{m.ID, owner, m.Deleted, m.ClientCreatedAt, m.ClientUpdatedAt, s.now(), m.ChatID, m.Content, string(m.Role), m.Pinned})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) UpsertPrompts(ctx context.Context, owner string, recs []*entity.Prompt) error {
	for _, p := range recs {
		err := s.upsert(ctx, "prompts", owner, p.ID, `
			INSERT INTO prompts (id, author_id, deleted, client_created_at, client_updated_at,
				server_created_at, server_updated_at, name, content, pinned)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9)
		`, []any{p.ID, owner, p.Deleted, p.ClientCreatedAt, p.ClientUpdatedAt, s.now(), p.Name, p.Content, p.Pinned}, `
			UPDATE prompts SET deleted = $3, client_created_at = $4, client_updated_at = $5,
				server_updated_at = $6, name = $7, content = $8, pinned = $9
			WHERE id = $1 AND author_id = $2 AND client_updated_at < $5
		`, []any{p.ID, owner, p.Deleted, p.ClientCreatedAt, p.ClientUpdatedAt, s.now(), p.Name, p.Content, p.Pinned})
		if err != nil {
			return err
		}
	}
	return nil
}

// upsert applies the push-phase rule for a single record: existing rows
// get the guarded update (zero rows matched means the stored version is
// newer, a stale push silently ignored); missing rows are inserted, and
// an insert losing a race to a concurrent insert of the same id (unique
// violation) is retried once as the guarded update.
func (s *PGStore) upsert(ctx context.Context, table, owner, id string, insertSQL string, insertArgs []any, updateSQL string, updateArgs []any) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1 AND author_id = $2)`,
		id, owner).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing record %s: %w", id, err)
	}

	if exists {
		if _, err := s.pool.Exec(ctx, updateSQL, updateArgs...); err != nil {
			return fmt.Errorf("failed to update record %s: %w", id, err)
		}
		return nil
	}

	if _, err := s.pool.Exec(ctx, insertSQL, insertArgs...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Lost the insert race; the row exists now, so fall back to
			// the guarded update.
			if _, uerr := s.pool.Exec(ctx, updateSQL, updateArgs...); uerr != nil {
				return fmt.Errorf("failed to update record %s after insert conflict: %w", id, uerr)
			}
			return nil
		}
		return fmt.Errorf("failed to insert record %s: %w", id, err)
	}
	return nil
}

// deleteChatCascade tombstones a chat and every message with its chatId in
// one transaction, all rows carrying the same clientUpdatedAt and
// serverUpdatedAt stamps.
func (s *PGStore) deleteChatCascade(ctx context.Context, owner string, c *entity.Chat) error {
	serverStamp := s.now()
	clientStamp := c.ClientUpdatedAt

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE chats SET deleted = TRUE, client_updated_at = $3, server_updated_at = $4
			WHERE id = $1 AND author_id = $2
		`, c.ID, owner, clientStamp, serverStamp); err != nil {
			return fmt.Errorf("failed to tombstone chat %s: %w", c.ID, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE messages SET deleted = TRUE, client_updated_at = $3, server_updated_at = $4
			WHERE chat_id = $1 AND author_id = $2
		`, c.ID, owner, clientStamp, serverStamp); err != nil {
			return fmt.Errorf("failed to tombstone messages of chat %s: %w", c.ID, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("chat cascade failed: %w", err)
	}
	return nil
}
