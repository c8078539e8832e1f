// Package entity defines the record types shared by the local and remote
// stores and the last-write-wins merge rules that reconcile them.
//
// Every synchronized record carries the same block of sync metadata
// (SyncMeta). Generic store and merge logic operates on that block through
// the Record interface instead of a base class.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// TimeFormat is the wire and storage format for all sync timestamps:
// fixed-width UTC with millisecond precision, so that lexicographic order
// of encoded values equals chronological order.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// EpochZero marks "never pushed". A record whose server timestamps read
// EpochZero is guaranteed to be selected by any watermark-based
// changed-since query.
var EpochZero = time.Unix(0, 0).UTC()

// Kind identifies an entity type on the wire and in storage.
type Kind string

const (
	KindChat    Kind = "chat"
	KindMessage Kind = "message"
	KindPrompt  Kind = "prompt"
)

// SyncMeta is the sync metadata block embedded in every record.
//
// ClientCreatedAt is set once at first local creation. ClientUpdatedAt is
// bumped on every local mutation (including soft-delete) and drives all
// conflict resolution. The server timestamps are authoritative only after
// the first accepted push; until then they read EpochZero.
type SyncMeta struct {
	ID              string
	AuthorID        string
	Deleted         bool
	ClientCreatedAt time.Time
	ClientUpdatedAt time.Time
	ServerCreatedAt time.Time
	ServerUpdatedAt time.Time
}

// Record is the capability interface for anything carrying sync metadata.
type Record interface {
	Meta() *SyncMeta
	Kind() Kind
}

func newSyncMeta(now time.Time) SyncMeta {
	return SyncMeta{
		ID:              uuid.New().String(),
		ClientCreatedAt: now,
		ClientUpdatedAt: now,
		ServerCreatedAt: EpochZero,
		ServerUpdatedAt: EpochZero,
	}
}

// ChatType tracks the lifecycle of a chat: it starts as a draft and becomes
// active once its first message round-trip has completed and a title has
// been generated.
type ChatType string

const (
	ChatDraft  ChatType = "draft"
	ChatActive ChatType = "active"
)

// Chat is a conversation thread.
type Chat struct {
	SyncMeta
	Topic  string
	Pinned bool
	Type   ChatType
}

func (c *Chat) Meta() *SyncMeta { return &c.SyncMeta }
func (c *Chat) Kind() Kind      { return KindChat }

// NewChat creates a draft chat with a client-generated id, ready for
// offline use before any server contact.
func NewChat(topic string) *Chat {
	return &Chat{
		SyncMeta: newSyncMeta(time.Now().UTC()),
		Topic:    topic,
		Type:     ChatDraft,
	}
}

// Role is the author role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single chat message. ChatID must be non-empty before any
// persistence operation; the local store rejects messages without it.
type Message struct {
	SyncMeta
	ChatID  string
	Content string
	Role    Role
	Pinned  bool
}

func (m *Message) Meta() *SyncMeta { return &m.SyncMeta }
func (m *Message) Kind() Kind      { return KindMessage }

// NewMessage creates a message bound to a chat.
func NewMessage(chatID string, role Role, content string) *Message {
	return &Message{
		SyncMeta: newSyncMeta(time.Now().UTC()),
		ChatID:   chatID,
		Role:     role,
		Content:  content,
	}
}

// Prompt is a reusable prompt template. Content may contain {{variable}}
// placeholders filled in by Render.
type Prompt struct {
	SyncMeta
	Name    string
	Content string
	Pinned  bool
}

func (p *Prompt) Meta() *SyncMeta { return &p.SyncMeta }
func (p *Prompt) Kind() Kind      { return KindPrompt }

// NewPrompt creates a prompt template.
func NewPrompt(name, content string) *Prompt {
	return &Prompt{
		SyncMeta: newSyncMeta(time.Now().UTC()),
		Name:     name,
		Content:  content,
	}
}
