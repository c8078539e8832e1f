package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solidSpoon/DashChat/entity"
	"github.com/solidSpoon/DashChat/internal/synctest"
	"github.com/solidSpoon/DashChat/localstore"
	"github.com/solidSpoon/DashChat/reconcile"
)

func newChatSession(t *testing.T, server *synctest.Server, enabled bool) (*Session[entity.Chat, *entity.Chat], *localstore.DB) {
	t.Helper()
	db, err := localstore.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := reconcile.New[entity.Chat, *entity.Chat](entity.KindChat, db.Chats, server.Chats(),
		reconcile.Config{EnableCloudSync: enabled}, nil)
	s := newSession(
		db.Chats.ListActive,
		db.Chats.Put,
		db.Chats.SoftDelete,
		eng,
		Options{EnableCloudSync: enabled},
	)
	require.NoError(t, s.Load(context.Background()))
	return s, db
}

func TestSession_MutateUpdatesView(t *testing.T) {
	s, _ := newChatSession(t, synctest.NewServer("owner-1"), false)
	ctx := context.Background()

	require.Empty(t, s.CurrentView())

	chat := entity.NewChat("hello")
	require.NoError(t, s.Mutate(ctx, chat))

	view := s.CurrentView()
	require.Len(t, view, 1)
	require.Equal(t, "hello", view[0].Topic)
}

func TestSession_RemoveDropsFromView(t *testing.T) {
	s, db := newChatSession(t, synctest.NewServer("owner-1"), false)
	ctx := context.Background()

	chat := entity.NewChat("doomed")
	require.NoError(t, s.Mutate(ctx, chat))
	require.NoError(t, s.Remove(ctx, chat))

	require.Empty(t, s.CurrentView())

	// Tombstone, not a hard delete.
	got, ok, err := db.Chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Deleted)
}

func TestSession_SubscribersNotified(t *testing.T) {
	s, _ := newChatSession(t, synctest.NewServer("owner-1"), false)
	ctx := context.Background()

	var views [][]*entity.Chat
	unsubscribe := s.Subscribe(func(view []*entity.Chat) {
		views = append(views, view)
	})

	require.NoError(t, s.Mutate(ctx, entity.NewChat("first")))
	require.Len(t, views, 1)
	require.Len(t, views[0], 1)

	unsubscribe()
	require.NoError(t, s.Mutate(ctx, entity.NewChat("second")))
	require.Len(t, views, 1, "unsubscribed observers stay silent")
}

func TestSession_RefreshRemotePullsServerState(t *testing.T) {
	server := synctest.NewServer("owner-1")
	s, _ := newChatSession(t, server, true)
	ctx := context.Background()

	// Another replica already pushed a chat.
	remote := entity.NewChat("from elsewhere")
	require.NoError(t, server.Store.UpsertChats(ctx, "owner-1", []*entity.Chat{remote}))

	require.NoError(t, s.RefreshRemote(ctx))

	view := s.CurrentView()
	require.Len(t, view, 1)
	require.Equal(t, "from elsewhere", view[0].Topic)
}

func TestSession_RefreshRemoteDisabledIsNoOp(t *testing.T) {
	server := synctest.NewServer("owner-1")
	s, _ := newChatSession(t, server, false)
	ctx := context.Background()

	require.NoError(t, s.Mutate(ctx, entity.NewChat("local only")))
	require.NoError(t, s.RefreshRemote(ctx))
	require.Zero(t, server.PushCalls.Load())
	require.Zero(t, server.PullCalls.Load())
}

func TestSession_ViewMergesLocalAndRemoteSnapshots(t *testing.T) {
	server := synctest.NewServer("owner-1")
	s, db := newChatSession(t, server, true)
	ctx := context.Background()

	remote := entity.NewChat("remote")
	require.NoError(t, server.Store.UpsertChats(ctx, "owner-1", []*entity.Chat{remote}))
	require.NoError(t, s.RefreshRemote(ctx))

	// A local mutation after the refresh joins the view without waiting
	// for another cycle.
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Mutate(ctx, entity.NewChat("local")))

	topics := map[string]bool{}
	for _, c := range s.CurrentView() {
		topics[c.Topic] = true
	}
	require.True(t, topics["remote"])
	require.True(t, topics["local"])

	// Both are in the store by now; the merged view stays deduplicated.
	all, err := db.Chats.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Len(t, s.CurrentView(), 2)
}
