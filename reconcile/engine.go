// Package reconcile drives one entity kind through the bidirectional
// last-write-wins sync cycle: compute the watermark, push local changes,
// pull remote changes, merge, write back.
//
// A cycle is coordination only - it never mutates records beyond what the
// merge rule dictates, is safe to re-run at any time (the watermark is
// recomputed fresh each cycle and pushes are idempotent), and requires no
// lock shared with the server.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solidSpoon/DashChat/entity"
	"github.com/solidSpoon/DashChat/localstore"
	"github.com/solidSpoon/DashChat/remotestore"
)

// Local is the slice of the local store adapter the engine needs.
type Local[R entity.Record] interface {
	MaxServerUpdatedAt(ctx context.Context) (time.Time, error)
	ListChangedSince(ctx context.Context, after time.Time) ([]R, error)
	Get(ctx context.Context, id string) (R, bool, error)
	Apply(ctx context.Context, rec R) error
}

// Remote is the slice of the remote store adapter the engine needs.
type Remote[R entity.Record] interface {
	PullChangedSince(ctx context.Context, after time.Time) ([]R, error)
	PushBatch(ctx context.Context, recs []R) error
}

// Stats reports what one cycle did. Callers can use Applied > 0 to detect
// that a pull overwrote or added local state (the protocol itself stays
// silent about superseded pushes).
type Stats struct {
	Cycle   uint64 // monotonically increasing cycle sequence
	Pushed  int    // records sent in the push phase
	Pulled  int    // records received in the pull phase
	Applied int    // pulled records that actually changed local state
}

// Config controls one engine instance.
type Config struct {
	// EnableCloudSync gates the whole cycle; when false, Sync is a no-op.
	// Explicit per-instance value, no process-wide flag.
	EnableCloudSync bool
	// TombstoneWindow bounds how old a tombstone may be and still be
	// pushed. Zero means localstore.DefaultTombstoneWindow.
	TombstoneWindow time.Duration
}

// Engine reconciles one entity kind between a local and a remote store.
type Engine[T any, PT interface {
	entity.Record
	*T
}] struct {
	kind   entity.Kind
	local  Local[PT]
	remote Remote[PT]
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex // serializes cycles for this kind
	cycle atomic.Uint64
}

// New creates an engine for one entity kind.
func New[T any, PT interface {
	entity.Record
	*T
}](kind entity.Kind, local Local[PT], remote Remote[PT], cfg Config, logger *slog.Logger) *Engine[T, PT] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TombstoneWindow <= 0 {
		cfg.TombstoneWindow = localstore.DefaultTombstoneWindow
	}
	return &Engine[T, PT]{kind: kind, local: local, remote: remote, cfg: cfg, logger: logger}
}

// Cycle returns the sequence number of the most recently started cycle.
// Callers holding results from an earlier cycle can compare against it and
// discard stale state.
func (e *Engine[T, PT]) Cycle() uint64 { return e.cycle.Load() }

// Sync runs one full push-then-pull cycle.
//
// The four steps run strictly in order; the pull deliberately reuses the
// watermark computed before this cycle's pushes landed, which can only
// cause redundant re-pulls, never lost updates. A transport error aborts
// the cycle for this kind only; no local writes happen before the failure,
// so the caller can simply re-invoke later. When cloud sync is disabled
// (by config or because no owner is signed in) the cycle is a silent no-op.
func (e *Engine[T, PT]) Sync(ctx context.Context) (Stats, error) {
	stats := Stats{Cycle: e.cycle.Add(1)}
	if !e.cfg.EnableCloudSync {
		return stats, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Step 1: watermark.
	watermark, err := e.local.MaxServerUpdatedAt(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to compute %s watermark: %w", e.kind, err)
	}

	// Step 2: push everything locally modified after the watermark.
	// Skipped entirely when empty - repeated cycles with nothing new must
	// not generate network traffic.
	unsynced, err := e.collectUnsynced(ctx, watermark)
	if err != nil {
		return stats, err
	}
	if len(unsynced) > 0 {
		if err := e.remote.PushBatch(ctx, unsynced); err != nil {
			if errors.Is(err, remotestore.ErrSyncDisabled) {
				return stats, nil
			}
			return stats, fmt.Errorf("failed to push %s batch: %w", e.kind, err)
		}
		stats.Pushed = len(unsynced)
	}

	// Step 3: pull remote records newer than the watermark.
	incoming, err := e.remote.PullChangedSince(ctx, watermark)
	if err != nil {
		if errors.Is(err, remotestore.ErrSyncDisabled) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to pull %s changes: %w", e.kind, err)
	}
	stats.Pulled = len(incoming)

	// Step 4: merge incoming records against local state.
	for _, inc := range incoming {
		applied, err := e.mergeIncoming(ctx, inc)
		if err != nil {
			return stats, err
		}
		if applied {
			stats.Applied++
		}
	}

	e.logger.Debug("sync cycle complete",
		"kind", e.kind, "cycle", stats.Cycle,
		"pushed", stats.Pushed, "pulled", stats.Pulled, "applied", stats.Applied)
	return stats, nil
}

// collectUnsynced selects the push set: records changed after the
// watermark, minus tombstones old enough to have already propagated.
func (e *Engine[T, PT]) collectUnsynced(ctx context.Context, watermark time.Time) ([]PT, error) {
	changed, err := e.local.ListChangedSince(ctx, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced %s records: %w", e.kind, err)
	}
	cutoff := time.Now().UTC().Add(-e.cfg.TombstoneWindow)
	out := changed[:0]
	for _, rec := range changed {
		m := rec.Meta()
		if m.Deleted && m.ClientUpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// mergeIncoming applies one pulled record: absent locally means insert
// as-is; present means last-write-wins, writing back only when the remote
// side won (ties included). A surviving local version stays pending and
// will win the next push instead.
func (e *Engine[T, PT]) mergeIncoming(ctx context.Context, inc PT) (bool, error) {
	cur, ok, err := e.local.Get(ctx, inc.Meta().ID)
	if err != nil {
		return false, fmt.Errorf("failed to load local %s record: %w", e.kind, err)
	}
	if !ok {
		cur = nil
	}
	merged := entity.Merge[T, PT](cur, inc)
	if merged != inc {
		return false, nil
	}
	if err := e.local.Apply(ctx, inc); err != nil {
		return false, fmt.Errorf("failed to apply pulled %s record: %w", e.kind, err)
	}
	return true, nil
}
