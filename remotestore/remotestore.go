// Package remotestore talks to the server-side sync API for one owner.
//
// It performs no retries and holds no state: any non-success response
// surfaces as a transport error, and a missing or sync-disabled owner
// surfaces as ErrSyncDisabled so callers can skip the cycle instead of
// failing it.
package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/solidSpoon/DashChat/entity"
)

// ErrSyncDisabled reports that cloud sync is currently unavailable for this
// client: no signed-in owner, the owner opted out, or the server rejected
// the credentials. It is a skip condition, not a failure.
var ErrSyncDisabled = errors.New("cloud sync disabled")

// Owner identifies the authenticated user on whose behalf the adapter
// pushes and pulls.
type Owner struct {
	ID          string
	SyncEnabled bool
}

// OwnerResolver resolves the current owner out-of-band (session lookup).
// The second return value is false when nobody is signed in.
type OwnerResolver interface {
	CurrentOwner(ctx context.Context) (Owner, bool, error)
}

// StaticOwner is an OwnerResolver returning a fixed owner. Useful for
// tools and tests.
type StaticOwner Owner

func (o StaticOwner) CurrentOwner(ctx context.Context) (Owner, bool, error) {
	return Owner(o), true, nil
}

// Client is the remote store adapter. One instance serves all entity
// kinds; the typed views (Chats, Messages, Prompts) share its transport.
type Client struct {
	baseURL  string
	token    func(context.Context) (string, error) // returns a bearer token for the current owner
	resolver OwnerResolver
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a remote store adapter rooted at baseURL. token is
// called per request; resolver gates every call on owner presence and the
// owner's sync-enabled flag.
func NewClient(baseURL string, token func(context.Context) (string, error), resolver OwnerResolver, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  baseURL,
		token:    token,
		resolver: resolver,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

// SetHTTPClient overrides the underlying HTTP client (tests, custom
// transports).
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// Enabled reports whether sync calls would currently go through.
func (c *Client) Enabled(ctx context.Context) bool {
	owner, ok, err := c.resolver.CurrentOwner(ctx)
	return err == nil && ok && owner.SyncEnabled
}

func (c *Client) checkOwner(ctx context.Context) error {
	owner, ok, err := c.resolver.CurrentOwner(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve current owner: %w", err)
	}
	if !ok || !owner.SyncEnabled {
		return ErrSyncDisabled
	}
	return nil
}

// pullResponse mirrors the GET /sync/{kind} body.
type pullResponse struct {
	Success string          `json:"success"`
	Records json.RawMessage `json:"records"`
}

type authResponse struct {
	Authenticated bool `json:"authenticated"`
}

func (c *Client) pull(ctx context.Context, kind entity.Kind, after time.Time) (json.RawMessage, error) {
	if err := c.checkOwner(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/sync/%s?after=%s", c.baseURL, kind, url.QueryEscape(entity.FormatTime(after)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s changes: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Server-side "no owner / sync off" answers 401 {authenticated:false}.
		var ar authResponse
		_ = json.NewDecoder(resp.Body).Decode(&ar)
		return nil, ErrSyncDisabled
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pull %s: server returned status %d: %s", kind, resp.StatusCode, string(body))
	}

	var pr pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}
	return pr.Records, nil
}

func (c *Client) push(ctx context.Context, kind entity.Kind, payload any) error {
	if err := c.checkOwner(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/sync/%s", c.baseURL, kind), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push %s batch: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrSyncDisabled
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push %s: server returned status %d: %s", kind, resp.StatusCode, string(b))
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Chats returns the chat view of the adapter.
func (c *Client) Chats() *ChatRemote { return &ChatRemote{c} }

// Messages returns the message view of the adapter.
func (c *Client) Messages() *MessageRemote { return &MessageRemote{c} }

// Prompts returns the prompt view of the adapter.
func (c *Client) Prompts() *PromptRemote { return &PromptRemote{c} }

// ChatRemote is the per-kind remote store adapter for chats.
type ChatRemote struct{ c *Client }

// PullChangedSince returns the owner's server-side chats with
// serverUpdatedAt after the watermark.
func (r *ChatRemote) PullChangedSince(ctx context.Context, after time.Time) ([]*entity.Chat, error) {
	raw, err := r.c.pull(ctx, entity.KindChat, after)
	if err != nil {
		return nil, err
	}
	var dtos []entity.ChatDTO
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &dtos); err != nil {
			return nil, fmt.Errorf("failed to decode chat records: %w", err)
		}
	}
	out := make([]*entity.Chat, 0, len(dtos))
	for _, d := range dtos {
		rec, err := entity.ChatFromDTO(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// PushBatch uploads locally modified chats. An empty batch is a no-op
// without a network call.
func (r *ChatRemote) PushBatch(ctx context.Context, recs []*entity.Chat) error {
	if len(recs) == 0 {
		return nil
	}
	dtos := make([]entity.ChatDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = rec.ToDTO()
	}
	return r.c.push(ctx, entity.KindChat, dtos)
}

// MessageRemote is the per-kind remote store adapter for messages.
type MessageRemote struct{ c *Client }

func (r *MessageRemote) PullChangedSince(ctx context.Context, after time.Time) ([]*entity.Message, error) {
	raw, err := r.c.pull(ctx, entity.KindMessage, after)
	if err != nil {
		return nil, err
	}
	var dtos []entity.MessageDTO
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &dtos); err != nil {
			return nil, fmt.Errorf("failed to decode message records: %w", err)
		}
	}
	out := make([]*entity.Message, 0, len(dtos))
	for _, d := range dtos {
		rec, err := entity.MessageFromDTO(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *MessageRemote) PushBatch(ctx context.Context, recs []*entity.Message) error {
	if len(recs) == 0 {
		return nil
	}
	dtos := make([]entity.MessageDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = rec.ToDTO()
	}
	return r.c.push(ctx, entity.KindMessage, dtos)
}

// PromptRemote is the per-kind remote store adapter for prompts.
type PromptRemote struct{ c *Client }

func (r *PromptRemote) PullChangedSince(ctx context.Context, after time.Time) ([]*entity.Prompt, error) {
	raw, err := r.c.pull(ctx, entity.KindPrompt, after)
	if err != nil {
		return nil, err
	}
	var dtos []entity.PromptDTO
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &dtos); err != nil {
			return nil, fmt.Errorf("failed to decode prompt records: %w", err)
		}
	}
	out := make([]*entity.Prompt, 0, len(dtos))
	for _, d := range dtos {
		rec, err := entity.PromptFromDTO(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *PromptRemote) PushBatch(ctx context.Context, recs []*entity.Prompt) error {
	if len(recs) == 0 {
		return nil
	}
	dtos := make([]entity.PromptDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = rec.ToDTO()
	}
	return r.c.push(ctx, entity.KindPrompt, dtos)
}
