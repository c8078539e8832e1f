package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/solidSpoon/DashChat/entity"
	"github.com/solidSpoon/DashChat/localstore"
	"github.com/solidSpoon/DashChat/reconcile"
	"github.com/solidSpoon/DashChat/remotestore"
)

// Hub wires sessions, stores, and engines together for one client. It
// caches sessions keyed by entity kind plus scope so repeated lookups of
// the same scope share snapshots and serialization.
type Hub struct {
	db     *localstore.DB
	remote *remotestore.Client
	opts   Options
	logger *slog.Logger

	chatEngine    *reconcile.Engine[entity.Chat, *entity.Chat]
	messageEngine *reconcile.Engine[entity.Message, *entity.Message]
	promptEngine  *reconcile.Engine[entity.Prompt, *entity.Prompt]

	mu       sync.Mutex
	chats    *Session[entity.Chat, *entity.Chat]
	prompts  *Session[entity.Prompt, *entity.Prompt]
	messages map[string]*Session[entity.Message, *entity.Message]
}

// NewHub creates the per-client session hub. enableCloudSync is an
// explicit per-hub value; there is no process-wide sync flag.
func NewHub(db *localstore.DB, remote *remotestore.Client, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engCfg := reconcile.Config{EnableCloudSync: opts.EnableCloudSync}
	return &Hub{
		db:            db,
		remote:        remote,
		opts:          opts,
		logger:        logger,
		chatEngine:    reconcile.New[entity.Chat, *entity.Chat](entity.KindChat, db.Chats, remote.Chats(), engCfg, logger),
		messageEngine: reconcile.New[entity.Message, *entity.Message](entity.KindMessage, &db.Messages.Store, remote.Messages(), engCfg, logger),
		promptEngine:  reconcile.New[entity.Prompt, *entity.Prompt](entity.KindPrompt, db.Prompts, remote.Prompts(), engCfg, logger),
		messages:      map[string]*Session[entity.Message, *entity.Message]{},
	}
}

// Chats returns the all-chats session.
func (h *Hub) Chats() *Session[entity.Chat, *entity.Chat] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chats == nil {
		h.chats = newSession(
			h.db.Chats.ListActive,
			h.db.Chats.Put,
			// Chat removal is the cascading group write: the chat and all
			// its messages tombstoned in one local transaction.
			func(ctx context.Context, c *entity.Chat) error {
				return h.db.DeleteChatCascade(ctx, c)
			},
			h.chatEngine,
			h.sessionOpts(false),
		)
	}
	return h.chats
}

// Prompts returns the all-prompts session.
func (h *Hub) Prompts() *Session[entity.Prompt, *entity.Prompt] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.prompts == nil {
		h.prompts = newSession(
			h.db.Prompts.ListActive,
			h.db.Prompts.Put,
			h.db.Prompts.SoftDelete,
			h.promptEngine,
			h.sessionOpts(false),
		)
	}
	return h.prompts
}

// Messages returns the session scoped to one chat's messages, ordered by
// clientCreatedAt.
func (h *Hub) Messages(chatID string) *Session[entity.Message, *entity.Message] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.messages[chatID]; ok {
		return s
	}
	s := newSession(
		func(ctx context.Context) ([]*entity.Message, error) {
			return h.db.Messages.ListActiveByChat(ctx, chatID)
		},
		h.db.Messages.Put,
		h.db.Messages.SoftDelete,
		h.messageEngine,
		h.sessionOpts(true),
	)
	h.messages[chatID] = s
	return s
}

// SyncAll runs one cycle for every entity kind, chats before messages so
// freshly pulled chats exist before their messages arrive. A failure of
// one kind aborts only that kind; the others still run.
func (h *Hub) SyncAll(ctx context.Context) error {
	var firstErr error
	if _, err := h.chatEngine.Sync(ctx); err != nil {
		firstErr = err
	}
	if _, err := h.messageEngine.Sync(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if _, err := h.promptEngine.Sync(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (h *Hub) sessionOpts(byCreatedAt bool) Options {
	opts := h.opts
	opts.SortByCreatedAt = byCreatedAt
	opts.Logger = h.logger
	return opts
}
