package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solidSpoon/DashChat/entity"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPut_StampsClientUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	chat := entity.NewChat("first")
	created := chat.ClientUpdatedAt

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, db.Chats.Put(ctx, chat))
	require.True(t, chat.ClientUpdatedAt.After(created),
		"Put must stamp a fresh clientUpdatedAt")

	got, ok, err := db.Chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", got.Topic)
	require.Equal(t, entity.ChatDraft, got.Type)
}

func TestPut_UpsertsById(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	chat := entity.NewChat("before")
	require.NoError(t, db.Chats.Put(ctx, chat))
	chat.Topic = "after"
	require.NoError(t, db.Chats.Put(ctx, chat))

	all, err := db.Chats.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "after", all[0].Topic)
}

func TestPut_RejectsMessageWithoutChat(t *testing.T) {
	db := newTestDB(t)

	msg := entity.NewMessage("", entity.RoleUser, "orphan")
	err := db.Messages.Put(context.Background(), msg)
	require.ErrorIs(t, err, ErrValidation)

	_, ok, err := db.Messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	require.False(t, ok, "rejected record must not be persisted")
}

func TestMaxServerUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Empty table: watermark is the epoch.
	w, err := db.Chats.MaxServerUpdatedAt(ctx)
	require.NoError(t, err)
	require.True(t, w.Equal(entity.EpochZero))

	// Never-pushed records keep the watermark at the epoch.
	require.NoError(t, db.Chats.Put(ctx, entity.NewChat("local only")))
	w, err = db.Chats.MaxServerUpdatedAt(ctx)
	require.NoError(t, err)
	require.True(t, w.Equal(entity.EpochZero))

	// A record that came back from the server moves it.
	synced := entity.NewChat("synced")
	stamp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	synced.ServerCreatedAt = stamp
	synced.ServerUpdatedAt = stamp
	require.NoError(t, db.Chats.Apply(ctx, synced))

	w, err = db.Chats.MaxServerUpdatedAt(ctx)
	require.NoError(t, err)
	require.True(t, w.Equal(stamp), "watermark %v, want %v", w, stamp)
}

func TestApply_PreservesTimestamps(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stamp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	chat := entity.NewChat("pulled")
	chat.ClientUpdatedAt = stamp
	chat.ServerUpdatedAt = stamp.Add(time.Second)

	require.NoError(t, db.Chats.Apply(ctx, chat))

	got, ok, err := db.Chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.ClientUpdatedAt.Equal(stamp))
	require.True(t, got.ServerUpdatedAt.Equal(stamp.Add(time.Second)))
}

func TestListChangedSince(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	watermark := time.Now().UTC().Add(-time.Hour)

	// A record created while offline: client stamp after the watermark,
	// server stamps still at the epoch.
	offline := entity.NewChat("offline")
	require.NoError(t, db.Chats.Put(ctx, offline))

	// A fully synced record is older than the watermark and must not be
	// re-pushed.
	synced := entity.NewChat("synced")
	synced.ClientUpdatedAt = watermark.Add(-time.Minute)
	synced.ServerUpdatedAt = watermark
	require.NoError(t, db.Chats.Apply(ctx, synced))

	changed, err := db.Chats.ListChangedSince(ctx, watermark)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, offline.ID, changed[0].ID)
}

func TestSoftDelete_TombstoneVisibility(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := entity.NewPrompt("doomed", "x")
	require.NoError(t, db.Prompts.Put(ctx, p))
	require.NoError(t, db.Prompts.SoftDelete(ctx, p))

	active, err := db.Prompts.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	// The fresh tombstone still shows up for the push path.
	withTombstones, err := db.Prompts.ListActiveIncludingRecentTombstones(ctx, DefaultTombstoneWindow)
	require.NoError(t, err)
	require.Len(t, withTombstones, 1)
	require.True(t, withTombstones[0].Deleted)

	// Outside the window it disappears from that view too.
	withTombstones, err = db.Prompts.ListActiveIncludingRecentTombstones(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, withTombstones)

	// The row itself is never removed.
	got, ok, err := db.Prompts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Deleted)
}

func TestDeleteChatCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	chat := entity.NewChat("with messages")
	require.NoError(t, db.Chats.Put(ctx, chat))
	m1 := entity.NewMessage(chat.ID, entity.RoleUser, "hi")
	m2 := entity.NewMessage(chat.ID, entity.RoleAssistant, "hello")
	other := entity.NewChat("untouched")
	require.NoError(t, db.Chats.Put(ctx, other))
	otherMsg := entity.NewMessage(other.ID, entity.RoleUser, "elsewhere")
	require.NoError(t, db.Messages.Put(ctx, m1))
	require.NoError(t, db.Messages.Put(ctx, m2))
	require.NoError(t, db.Messages.Put(ctx, otherMsg))

	require.NoError(t, db.DeleteChatCascade(ctx, chat))
	require.True(t, chat.Deleted)

	gotChat, _, err := db.Chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.True(t, gotChat.Deleted)

	// Chat and messages carry the identical stamp: one logical write.
	for _, id := range []string{m1.ID, m2.ID} {
		msg, _, err := db.Messages.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, msg.Deleted)
		require.True(t, msg.ClientUpdatedAt.Equal(gotChat.ClientUpdatedAt))
	}

	// The other chat's messages survive.
	kept, _, err := db.Messages.Get(ctx, otherMsg.ID)
	require.NoError(t, err)
	require.False(t, kept.Deleted)

	byChat, err := db.Messages.ListActiveByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Empty(t, byChat)
}
