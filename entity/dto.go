package entity

import (
	"fmt"
	"time"
)

// Wire DTOs for the /sync HTTP contract. Timestamps travel as ISO-8601
// strings in TimeFormat; everything else mirrors the record fields.

// MetaDTO is the shared sync-metadata block of every wire record.
type MetaDTO struct {
	ID              string `json:"id"`
	AuthorID        string `json:"authorId,omitempty"`
	Deleted         bool   `json:"deleted"`
	ClientCreatedAt string `json:"clientCreatedAt"`
	ClientUpdatedAt string `json:"clientUpdatedAt"`
	ServerCreatedAt string `json:"serverCreatedAt"`
	ServerUpdatedAt string `json:"serverUpdatedAt"`
}

// ChatDTO is the wire form of a Chat.
type ChatDTO struct {
	MetaDTO
	Topic  string `json:"topic"`
	Pinned bool   `json:"pinned"`
	Type   string `json:"type"`
}

// MessageDTO is the wire form of a Message.
type MessageDTO struct {
	MetaDTO
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	Role    string `json:"role"`
	Pinned  bool   `json:"pinned"`
}

// PromptDTO is the wire form of a Prompt.
type PromptDTO struct {
	MetaDTO
	Name    string `json:"name"`
	Content string `json:"content"`
	Pinned  bool   `json:"pinned"`
}

// FormatTime encodes a timestamp in the canonical wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime decodes a wire timestamp. It accepts any RFC 3339 value so that
// foreign producers with different fractional precision still sync.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func toMetaDTO(m *SyncMeta) MetaDTO {
	return MetaDTO{
		ID:              m.ID,
		AuthorID:        m.AuthorID,
		Deleted:         m.Deleted,
		ClientCreatedAt: FormatTime(m.ClientCreatedAt),
		ClientUpdatedAt: FormatTime(m.ClientUpdatedAt),
		ServerCreatedAt: FormatTime(m.ServerCreatedAt),
		ServerUpdatedAt: FormatTime(m.ServerUpdatedAt),
	}
}

func (d *MetaDTO) toSyncMeta() (SyncMeta, error) {
	var (
		m   = SyncMeta{ID: d.ID, AuthorID: d.AuthorID, Deleted: d.Deleted}
		err error
	)
	if m.ClientCreatedAt, err = ParseTime(d.ClientCreatedAt); err != nil {
		return m, err
	}
	if m.ClientUpdatedAt, err = ParseTime(d.ClientUpdatedAt); err != nil {
		return m, err
	}
	if m.ServerCreatedAt, err = ParseTime(d.ServerCreatedAt); err != nil {
		return m, err
	}
	if m.ServerUpdatedAt, err = ParseTime(d.ServerUpdatedAt); err != nil {
		return m, err
	}
	return m, nil
}

// ToDTO converts a Chat to its wire form.
func (c *Chat) ToDTO() ChatDTO {
	return ChatDTO{MetaDTO: toMetaDTO(&c.SyncMeta), Topic: c.Topic, Pinned: c.Pinned, Type: string(c.Type)}
}

// ChatFromDTO converts a wire chat back to a record.
func ChatFromDTO(d ChatDTO) (*Chat, error) {
	m, err := d.toSyncMeta()
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", d.ID, err)
	}
	return &Chat{SyncMeta: m, Topic: d.Topic, Pinned: d.Pinned, Type: ChatType(d.Type)}, nil
}

// ToDTO converts a Message to its wire form.
func (m *Message) ToDTO() MessageDTO {
	return MessageDTO{MetaDTO: toMetaDTO(&m.SyncMeta), ChatID: m.ChatID, Content: m.Content, Role: string(m.Role), Pinned: m.Pinned}
}

// MessageFromDTO converts a wire message back to a record.
func MessageFromDTO(d MessageDTO) (*Message, error) {
	m, err := d.toSyncMeta()
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", d.ID, err)
	}
	return &Message{SyncMeta: m, ChatID: d.ChatID, Content: d.Content, Role: Role(d.Role), Pinned: d.Pinned}, nil
}

// ToDTO converts a Prompt to its wire form.
func (p *Prompt) ToDTO() PromptDTO {
	return PromptDTO{MetaDTO: toMetaDTO(&p.SyncMeta), Name: p.Name, Content: p.Content, Pinned: p.Pinned}
}

// PromptFromDTO converts a wire prompt back to a record.
func PromptFromDTO(d PromptDTO) (*Prompt, error) {
	m, err := d.toSyncMeta()
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", d.ID, err)
	}
	return &Prompt{SyncMeta: m, Name: d.Name, Content: d.Content, Pinned: d.Pinned}, nil
}
