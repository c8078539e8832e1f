package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solidSpoon/DashChat/entity"
	"github.com/solidSpoon/DashChat/internal/synctest"
	"github.com/solidSpoon/DashChat/localstore"
	"github.com/solidSpoon/DashChat/remotestore"
	"github.com/solidSpoon/DashChat/syncserver"
)

// newSyncedHub builds a hub talking to a real HTTP sync server backed by
// the shared in-memory store, as one signed-in device of ownerID.
func newSyncedHub(t *testing.T, srvURL string, auth *syncserver.JWTAuth, ownerID string) *Hub {
	t.Helper()
	db, err := localstore.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	remote := remotestore.NewClient(srvURL,
		func(ctx context.Context) (string, error) {
			return auth.GenerateToken(ownerID, true, time.Hour)
		},
		remotestore.StaticOwner{ID: ownerID, SyncEnabled: true}, nil)
	return NewHub(db, remote, Options{EnableCloudSync: true})
}

func startSyncServer(t *testing.T) (*httptest.Server, *syncserver.JWTAuth) {
	t.Helper()
	auth := syncserver.NewJWTAuth("test-secret")
	mux := http.NewServeMux()
	syncserver.NewHTTPHandlers(synctest.NewMemStore(nil), auth, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, auth
}

func TestHub_TwoDevicesConvergeOverHTTP(t *testing.T) {
	srv, auth := startSyncServer(t)
	deviceA := newSyncedHub(t, srv.URL, auth, "owner-1")
	deviceB := newSyncedHub(t, srv.URL, auth, "owner-1")
	ctx := context.Background()

	// Device A writes a chat with a message and a prompt, then syncs.
	chat := entity.NewChat("travel plans")
	require.NoError(t, deviceA.Chats().Mutate(ctx, chat))
	require.NoError(t, deviceA.Messages(chat.ID).Mutate(ctx,
		entity.NewMessage(chat.ID, entity.RoleUser, "where to?")))
	require.NoError(t, deviceA.Prompts().Mutate(ctx, entity.NewPrompt("tone", "Be brief")))
	require.NoError(t, deviceA.SyncAll(ctx))

	// Device B refreshes and sees everything.
	chatsB := deviceB.Chats()
	require.NoError(t, chatsB.Load(ctx))
	require.NoError(t, chatsB.RefreshRemote(ctx))
	viewB := chatsB.CurrentView()
	require.Len(t, viewB, 1)
	require.Equal(t, "travel plans", viewB[0].Topic)

	msgsB := deviceB.Messages(chat.ID)
	require.NoError(t, msgsB.RefreshRemote(ctx))
	require.Len(t, msgsB.CurrentView(), 1)

	promptsB := deviceB.Prompts()
	require.NoError(t, promptsB.RefreshRemote(ctx))
	require.Len(t, promptsB.CurrentView(), 1)

	// Device B deletes the chat; A observes the cascade.
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, chatsB.Remove(ctx, viewB[0]))
	require.NoError(t, deviceB.SyncAll(ctx))
	require.NoError(t, deviceA.SyncAll(ctx))

	chatsA := deviceA.Chats()
	require.NoError(t, chatsA.Load(ctx))
	require.Empty(t, chatsA.CurrentView())
	msgsA := deviceA.Messages(chat.ID)
	require.NoError(t, msgsA.Load(ctx))
	require.Empty(t, msgsA.CurrentView())
}

func TestHub_OwnersIsolated(t *testing.T) {
	srv, auth := startSyncServer(t)
	alice := newSyncedHub(t, srv.URL, auth, "alice")
	bob := newSyncedHub(t, srv.URL, auth, "bob")
	ctx := context.Background()

	require.NoError(t, alice.Chats().Mutate(ctx, entity.NewChat("alice private")))
	require.NoError(t, alice.SyncAll(ctx))

	bobChats := bob.Chats()
	require.NoError(t, bobChats.Load(ctx))
	require.NoError(t, bobChats.RefreshRemote(ctx))
	require.Empty(t, bobChats.CurrentView())
}
