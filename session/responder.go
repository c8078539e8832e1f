package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/solidSpoon/DashChat/completion"
	"github.com/solidSpoon/DashChat/entity"
)

const topicMaxLen = 40

// Responder drives one assistant round-trip for a chat: persist the user
// message, stream the assistant reply chunk by chunk into an in-progress
// message, and on the first completed round-trip give the chat a title and
// flip it from draft to active.
type Responder struct {
	hub      *Hub
	provider completion.Provider
	cfg      completion.Config
}

// NewResponder creates a responder over the hub's sessions.
func NewResponder(hub *Hub, provider completion.Provider, cfg completion.Config) *Responder {
	return &Responder{hub: hub, provider: provider, cfg: cfg}
}

// Send appends the user message to the chat and streams the assistant
// reply. The in-progress assistant message is persisted after every chunk
// so a crash or cancellation preserves partial output; cancel is checked
// between chunks and stopping never discards what was already written.
// The completed assistant message is returned.
func (r *Responder) Send(ctx context.Context, chat *entity.Chat, content string, cancel *completion.Cancel) (*entity.Message, error) {
	msgs := r.hub.Messages(chat.ID)

	userMsg := entity.NewMessage(chat.ID, entity.RoleUser, content)
	if err := msgs.Mutate(ctx, userMsg); err != nil {
		return nil, err
	}

	history := msgs.CurrentView()
	reply := entity.NewMessage(chat.ID, entity.RoleAssistant, "")

	err := r.provider.StreamCompletion(ctx, r.cfg, history, func(chunk string, final bool) error {
		if cancel != nil && cancel.Requested() {
			return errCancelled
		}
		if chunk == "" && !final {
			return nil
		}
		reply.Content += chunk
		return msgs.Mutate(ctx, reply)
	})
	if err != nil && !errors.Is(err, errCancelled) {
		// Partial output stays persisted; the caller may retry the turn.
		return reply, fmt.Errorf("assistant reply failed: %w", err)
	}

	if chat.Type == entity.ChatDraft {
		if err := r.activate(ctx, chat, content); err != nil {
			return reply, err
		}
	}
	return reply, nil
}

var errCancelled = errors.New("completion cancelled")

// activate titles the chat and transitions it draft -> active after its
// first completed round-trip.
func (r *Responder) activate(ctx context.Context, chat *entity.Chat, firstUserContent string) error {
	chat.Topic = deriveTopic(firstUserContent)
	chat.Type = entity.ChatActive
	return r.hub.Chats().Mutate(ctx, chat)
}

// deriveTopic builds a display title from the opening user message.
func deriveTopic(content string) string {
	topic := strings.Join(strings.Fields(content), " ")
	if topic == "" {
		return "New Chat"
	}
	runes := []rune(topic)
	if len(runes) > topicMaxLen {
		topic = string(runes[:topicMaxLen]) + "…"
	}
	return topic
}
