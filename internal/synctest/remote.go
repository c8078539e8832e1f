package synctest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/solidSpoon/DashChat/entity"
)

// Server is an in-process stand-in for the sync server, backed by a
// MemStore and addressed through per-kind remote adapters. Push and pull
// calls are counted so tests can assert that empty cycles stay quiet.
type Server struct {
	Store *MemStore
	Owner string

	PushCalls atomic.Int64
	PullCalls atomic.Int64
	// Err, when set, is returned by every adapter call. Use
	// remotestore.ErrSyncDisabled to simulate a revoked session.
	Err error
}

// NewServer creates a server double for one owner.
func NewServer(owner string) *Server {
	return &Server{Store: NewMemStore(nil), Owner: owner}
}

// Chats returns the chat remote adapter.
func (s *Server) Chats() *ChatRemote { return &ChatRemote{s} }

// Messages returns the message remote adapter.
func (s *Server) Messages() *MessageRemote { return &MessageRemote{s} }

// Prompts returns the prompt remote adapter.
func (s *Server) Prompts() *PromptRemote { return &PromptRemote{s} }

// ChatRemote adapts the server double to the chat sync cycle.
type ChatRemote struct{ s *Server }

func (r *ChatRemote) PullChangedSince(ctx context.Context, after time.Time) ([]*entity.Chat, error) {
	r.s.PullCalls.Add(1)
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.Store.ListChats(ctx, r.s.Owner, after)
}

func (r *ChatRemote) PushBatch(ctx context.Context, recs []*entity.Chat) error {
	if len(recs) == 0 {
		return nil
	}
	r.s.PushCalls.Add(1)
	if r.s.Err != nil {
		return r.s.Err
	}
	return r.s.Store.UpsertChats(ctx, r.s.Owner, recs)
}

// MessageRemote adapts the server double to the message sync cycle.
type MessageRemote struct{ s *Server }

func (r *MessageRemote) PullChangedSince(ctx context.Context, after time.Time) ([]*entity.Message, error) {
	r.s.PullCalls.Add(1)
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.Store.ListMessages(ctx, r.s.Owner, after)
}

func (r *MessageRemote) PushBatch(ctx context.Context, recs []*entity.Message) error {
	if len(recs) == 0 {
		return nil
	}
	r.s.PushCalls.Add(1)
	if r.s.Err != nil {
		return r.s.Err
	}
	return r.s.Store.UpsertMessages(ctx, r.s.Owner, recs)
}

// PromptRemote adapts the server double to the prompt sync cycle.
type PromptRemote struct{ s *Server }

func (r *PromptRemote) PullChangedSince(ctx context.Context, after time.Time) ([]*entity.Prompt, error) {
	r.s.PullCalls.Add(1)
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	return r.s.Store.ListPrompts(ctx, r.s.Owner, after)
}

func (r *PromptRemote) PushBatch(ctx context.Context, recs []*entity.Prompt) error {
	if len(recs) == 0 {
		return nil
	}
	r.s.PushCalls.Add(1)
	if r.s.Err != nil {
		return r.s.Err
	}
	return r.s.Store.UpsertPrompts(ctx, r.s.Owner, recs)
}
