package syncserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/solidSpoon/DashChat/entity"
)

// HTTPHandlers serves the /sync/{entityType} API.
//
// GET  /sync/{entityType}?after=<ts>  pull records changed after the watermark
// PUT  /sync/{entityType}             push a batch of client records
//
// Every route requires a bearer token; an unauthenticated request or an
// owner with sync disabled answers 401 {"authenticated": false}, which
// clients treat as a skip condition rather than an error.
type HTTPHandlers struct {
	store  SyncStore
	auth   Authenticator
	logger *slog.Logger
}

// NewHTTPHandlers creates the sync API handlers.
func NewHTTPHandlers(store SyncStore, auth Authenticator, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{store: store, auth: auth, logger: logger}
}

// Register mounts the sync routes on mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sync/{entityType}", h.HandlePull)
	mux.HandleFunc("PUT /sync/{entityType}", h.HandlePush)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}

// HandlePull answers a pull: the owner's records of one entity type with
// serverUpdatedAt strictly after the client's watermark, tombstones
// included.
func (h *HTTPHandlers) HandlePull(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	kind, err := parseKind(r.PathValue("entityType"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "unknown_entity_type", err.Error())
		return
	}

	after := entity.EpochZero
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		after, err = entity.ParseTime(afterStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "after must be a timestamp")
			return
		}
	}

	records, err := h.listDTOs(r, owner.ID, kind, after)
	if err != nil {
		h.logger.Error("pull failed", "entity_type", kind, "owner", owner.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "pull_failed", "failed to list records")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": "true",
		"records": records,
	})
}

// HandlePush applies a pushed batch under the stale-write guard. An empty
// batch succeeds without touching the store.
func (h *HTTPHandlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	kind, err := parseKind(r.PathValue("entityType"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "unknown_entity_type", err.Error())
		return
	}

	if err := h.applyPush(r, owner.ID, kind); err != nil {
		var verr *pushDecodeError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", verr.Error())
			return
		}
		h.logger.Error("push failed", "entity_type", kind, "owner", owner.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "push_failed", "failed to apply batch")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": "true"})
}

// HandleHealth reports liveness.
func (h *HTTPHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *HTTPHandlers) authenticate(w http.ResponseWriter, r *http.Request) (Owner, bool) {
	owner, err := h.auth.GetOwner(r)
	if err != nil || !owner.SyncEnabled {
		if err != nil {
			h.logger.Debug("sync auth rejected", "error", err)
		}
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return Owner{}, false
	}
	return owner, true
}

func parseKind(s string) (entity.Kind, error) {
	switch entity.Kind(s) {
	case entity.KindChat, entity.KindMessage, entity.KindPrompt:
		return entity.Kind(s), nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

type pushDecodeError struct{ err error }

func (e *pushDecodeError) Error() string { return e.err.Error() }
func (e *pushDecodeError) Unwrap() error { return e.err }

func (h *HTTPHandlers) listDTOs(r *http.Request, owner string, kind entity.Kind, after time.Time) (any, error) {
	ctx := r.Context()
	switch kind {
	case entity.KindChat:
		recs, err := h.store.ListChats(ctx, owner, after)
		if err != nil {
			return nil, err
		}
		dtos := make([]entity.ChatDTO, len(recs))
		for i, rec := range recs {
			dtos[i] = rec.ToDTO()
		}
		return dtos, nil
	case entity.KindMessage:
		recs, err := h.store.ListMessages(ctx, owner, after)
		if err != nil {
			return nil, err
		}
		dtos := make([]entity.MessageDTO, len(recs))
		for i, rec := range recs {
			dtos[i] = rec.ToDTO()
		}
		return dtos, nil
	default:
		recs, err := h.store.ListPrompts(ctx, owner, after)
		if err != nil {
			return nil, err
		}
		dtos := make([]entity.PromptDTO, len(recs))
		for i, rec := range recs {
			dtos[i] = rec.ToDTO()
		}
		return dtos, nil
	}
}

func (h *HTTPHandlers) applyPush(r *http.Request, owner string, kind entity.Kind) error {
	ctx := r.Context()
	dec := json.NewDecoder(r.Body)
	switch kind {
	case entity.KindChat:
		var dtos []entity.ChatDTO
		if err := dec.Decode(&dtos); err != nil {
			return &pushDecodeError{fmt.Errorf("failed to parse chat batch: %w", err)}
		}
		recs := make([]*entity.Chat, 0, len(dtos))
		for _, d := range dtos {
			rec, err := entity.ChatFromDTO(d)
			if err != nil {
				return &pushDecodeError{err}
			}
			recs = append(recs, rec)
		}
		if len(recs) == 0 {
			return nil
		}
		return h.store.UpsertChats(ctx, owner, recs)
	case entity.KindMessage:
		var dtos []entity.MessageDTO
		if err := dec.Decode(&dtos); err != nil {
			return &pushDecodeError{fmt.Errorf("failed to parse message batch: %w", err)}
		}
		recs := make([]*entity.Message, 0, len(dtos))
		for _, d := range dtos {
			rec, err := entity.MessageFromDTO(d)
			if err != nil {
				return &pushDecodeError{err}
			}
			recs = append(recs, rec)
		}
		if len(recs) == 0 {
			return nil
		}
		return h.store.UpsertMessages(ctx, owner, recs)
	default:
		var dtos []entity.PromptDTO
		if err := dec.Decode(&dtos); err != nil {
			return &pushDecodeError{fmt.Errorf("failed to parse prompt batch: %w", err)}
		}
		recs := make([]*entity.Prompt, 0, len(dtos))
		for _, d := range dtos {
			rec, err := entity.PromptFromDTO(d)
			if err != nil {
				return &pushDecodeError{err}
			}
			recs = append(recs, rec)
		}
		if len(recs) == 0 {
			return nil
		}
		return h.store.UpsertPrompts(ctx, owner, recs)
	}
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSON(w, statusCode, map[string]any{
		"error":   errorCode,
		"message": message,
	})
	h.logger.Debug("sync error response", "status_code", statusCode, "error_code", errorCode, "message", message)
}
