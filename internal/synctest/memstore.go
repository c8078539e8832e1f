// Package synctest provides in-memory sync-server doubles for tests: a
// MemStore applying the real server upsert semantics without Postgres, and
// remote adapters with call counters for exercising sync cycles offline.
package synctest

import (
	"context"
	"sync"
	"time"

	"github.com/solidSpoon/DashChat/entity"
)

// Clock is a deterministic time source that advances one millisecond per
// Now call, so consecutive server stamps are strictly increasing.
type Clock struct {
	mu   sync.Mutex
	next time.Time
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{next: start.UTC()}
}

// Now returns the next tick.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(time.Millisecond)
	return t
}

// MemStore implements syncserver.SyncStore in memory, including the
// stale-push guard and the deleted-chat cascade.
type MemStore struct {
	mu       sync.Mutex
	now      func() time.Time
	chats    map[string]map[string]*entity.Chat // owner -> id -> record
	messages map[string]map[string]*entity.Message
	prompts  map[string]map[string]*entity.Prompt
}

// NewMemStore creates an empty store; a nil clock defaults to wall-clock
// UTC so server stamps land after the client stamps that produced them.
func NewMemStore(now func() time.Time) *MemStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemStore{
		now:      now,
		chats:    make(map[string]map[string]*entity.Chat),
		messages: make(map[string]map[string]*entity.Message),
		prompts:  make(map[string]map[string]*entity.Prompt),
	}
}

func (s *MemStore) ListChats(ctx context.Context, owner string, after time.Time) ([]*entity.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Chat
	for _, c := range s.chats[owner] {
		if c.ServerUpdatedAt.After(after) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) ListMessages(ctx context.Context, owner string, after time.Time) ([]*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Message
	for _, m := range s.messages[owner] {
		if m.ServerUpdatedAt.After(after) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) ListPrompts(ctx context.Context, owner string, after time.Time) ([]*entity.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Prompt
	for _, p := range s.prompts[owner] {
		if p.ServerUpdatedAt.After(after) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) UpsertChats(ctx context.Context, owner string, recs []*entity.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range recs {
		if c.Deleted {
			s.deleteChatCascadeLocked(owner, c)
			continue
		}
		byID := s.ownerChatsLocked(owner)
		cur, ok := byID[c.ID]
		if ok && !cur.ClientUpdatedAt.Before(c.ClientUpdatedAt) {
			continue // stale push
		}
		cp := *c
		cp.AuthorID = owner
		cp.ServerUpdatedAt = s.now()
		if ok {
			cp.ServerCreatedAt = cur.ServerCreatedAt
		} else {
			cp.ServerCreatedAt = cp.ServerUpdatedAt
		}
		byID[c.ID] = &cp
	}
	return nil
}

func (s *MemStore) UpsertMessages(ctx context.Context, owner string, recs []*entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.ownerMessagesLocked(owner)
	for _, m := range recs {
		cur, ok := byID[m.ID]
		if ok && !cur.ClientUpdatedAt.Before(m.ClientUpdatedAt) {
			continue
		}
		cp := *m
		cp.AuthorID = owner
		cp.ServerUpdatedAt = s.now()
		if ok {
			cp.ServerCreatedAt = cur.ServerCreatedAt
		} else {
			cp.ServerCreatedAt = cp.ServerUpdatedAt
		}
		byID[m.ID] = &cp
	}
	return nil
}

func (s *MemStore) UpsertPrompts(ctx context.Context, owner string, recs []*entity.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.ownerPromptsLocked(owner)
	for _, p := range recs {
		cur, ok := byID[p.ID]
		if ok && !cur.ClientUpdatedAt.Before(p.ClientUpdatedAt) {
			continue
		}
		cp := *p
		cp.AuthorID = owner
		cp.ServerUpdatedAt = s.now()
		if ok {
			cp.ServerCreatedAt = cur.ServerCreatedAt
		} else {
			cp.ServerCreatedAt = cp.ServerUpdatedAt
		}
		byID[p.ID] = &cp
	}
	return nil
}

// deleteChatCascadeLocked tombstones the chat and all its messages with
// identical client and server stamps. Update-only, like the SQL cascade:
// a chat the server never saw is not materialized, but its messages are
// still tombstoned by chat id.
func (s *MemStore) deleteChatCascadeLocked(owner string, c *entity.Chat) {
	serverStamp := s.now()
	clientStamp := c.ClientUpdatedAt

	if cur, ok := s.ownerChatsLocked(owner)[c.ID]; ok {
		cur.Deleted = true
		cur.ClientUpdatedAt = clientStamp
		cur.ServerUpdatedAt = serverStamp
	}

	for _, m := range s.ownerMessagesLocked(owner) {
		if m.ChatID == c.ID {
			m.Deleted = true
			m.ClientUpdatedAt = clientStamp
			m.ServerUpdatedAt = serverStamp
		}
	}
}

func (s *MemStore) ownerChatsLocked(owner string) map[string]*entity.Chat {
	if s.chats[owner] == nil {
		s.chats[owner] = make(map[string]*entity.Chat)
	}
	return s.chats[owner]
}

func (s *MemStore) ownerMessagesLocked(owner string) map[string]*entity.Message {
	if s.messages[owner] == nil {
		s.messages[owner] = make(map[string]*entity.Message)
	}
	return s.messages[owner]
}

func (s *MemStore) ownerPromptsLocked(owner string) map[string]*entity.Prompt {
	if s.prompts[owner] == nil {
		s.prompts[owner] = make(map[string]*entity.Prompt)
	}
	return s.prompts[owner]
}
