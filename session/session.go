// Package session exposes a reactive view of the merged entity set to
// callers: mutate locally, observe the deduplicated local-union-remote
// view, and let the reconciliation engine run behind the scenes.
//
// One Session serves one (entity kind, scope) pair - all chats, all
// prompts, or the messages of a single chat. Mutate and RefreshRemote are
// serialized per session so a sync cycle always observes a locally
// consistent snapshot.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/solidSpoon/DashChat/entity"
	"github.com/solidSpoon/DashChat/reconcile"
)

// Session maintains the local snapshot and the last-reconciled remote
// snapshot for one scope and recomputes the merged view when either
// changes.
type Session[T any, PT interface {
	entity.Record
	*T
}] struct {
	listLocal func(ctx context.Context) ([]PT, error)
	put       func(ctx context.Context, rec PT) error
	remove    func(ctx context.Context, rec PT) error
	engine    *reconcile.Engine[T, PT]

	enabled     bool // cloud sync on for this owner
	eagerSync   bool // trigger a cycle on every mutation
	byCreatedAt bool // view ordered by clientCreatedAt (messages)
	logger      *slog.Logger

	mu         sync.Mutex
	localSnap  []PT
	remoteSnap []PT
	remoteAsOf uint64 // engine cycle the remote snapshot came from

	subMu   sync.Mutex
	subs    map[int]func(view []PT)
	nextSub int

	syncQueued atomic.Bool
}

// Options configures a session.
type Options struct {
	EnableCloudSync bool
	// EagerSync triggers an asynchronous sync cycle after every Mutate and
	// Remove. Disable for manual control (tests, batch imports).
	EagerSync bool
	// SortByCreatedAt orders the view by clientCreatedAt ascending.
	SortByCreatedAt bool
	Logger          *slog.Logger
}

func newSession[T any, PT interface {
	entity.Record
	*T
}](
	listLocal func(ctx context.Context) ([]PT, error),
	put, remove func(ctx context.Context, rec PT) error,
	engine *reconcile.Engine[T, PT],
	opts Options,
) *Session[T, PT] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session[T, PT]{
		listLocal:   listLocal,
		put:         put,
		remove:      remove,
		engine:      engine,
		enabled:     opts.EnableCloudSync,
		eagerSync:   opts.EagerSync,
		byCreatedAt: opts.SortByCreatedAt,
		logger:      logger,
		subs:        map[int]func(view []PT){},
	}
}

// Load primes the local snapshot from the store. Call once after
// construction.
func (s *Session[T, PT]) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocalLocked(ctx)
}

// CurrentView returns the merged, deduplicated, tombstone-free view of the
// scope.
func (s *Session[T, PT]) CurrentView() []PT {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.MergeSets[T, PT](s.localSnap, s.remoteSnap, s.byCreatedAt)
}

// Subscribe registers an observer called with the fresh view after every
// snapshot change. The returned function unsubscribes.
func (s *Session[T, PT]) Subscribe(fn func(view []PT)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Mutate writes a record through the local store, refreshes the local
// snapshot, and - when cloud sync is enabled - triggers one reconciliation
// cycle asynchronously.
func (s *Session[T, PT]) Mutate(ctx context.Context, rec PT) error {
	s.mu.Lock()
	err := s.put(ctx, rec)
	if err == nil {
		err = s.refreshLocalLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify()
	s.scheduleSync()
	return nil
}

// Remove tombstones a record; otherwise identical to Mutate.
func (s *Session[T, PT]) Remove(ctx context.Context, rec PT) error {
	s.mu.Lock()
	err := s.remove(ctx, rec)
	if err == nil {
		err = s.refreshLocalLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify()
	s.scheduleSync()
	return nil
}

// RefreshRemote forces one reconciliation cycle and updates the remote
// snapshot. It is a no-op when cloud sync is disabled for the owner.
func (s *Session[T, PT]) RefreshRemote(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	stats, err := s.engine.Sync(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// A later-issued cycle may have refreshed the snapshot while this one
	// was in flight; never let the older result overwrite it.
	if stats.Cycle >= s.remoteAsOf {
		snap, lerr := s.listLocal(ctx)
		if lerr != nil {
			s.mu.Unlock()
			return lerr
		}
		s.remoteSnap = snap
		s.remoteAsOf = stats.Cycle
		if lerr := s.refreshLocalLocked(ctx); lerr != nil {
			s.mu.Unlock()
			return lerr
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session[T, PT]) refreshLocalLocked(ctx context.Context) error {
	snap, err := s.listLocal(ctx)
	if err != nil {
		return err
	}
	s.localSnap = snap
	return nil
}

func (s *Session[T, PT]) notify() {
	view := s.CurrentView()
	s.subMu.Lock()
	fns := make([]func([]PT), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(view)
	}
}

// scheduleSync queues at most one background cycle at a time; bursts of
// mutations collapse into a single refresh.
func (s *Session[T, PT]) scheduleSync() {
	if !s.enabled || !s.eagerSync {
		return
	}
	if !s.syncQueued.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.syncQueued.Store(false)
		if err := s.RefreshRemote(context.Background()); err != nil {
			s.logger.Error("background sync cycle failed", "error", err)
		}
	}()
}
