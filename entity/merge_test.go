package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chatAt(id string, createdAt, updatedAt time.Time) *Chat {
	return &Chat{SyncMeta: SyncMeta{
		ID:              id,
		ClientCreatedAt: createdAt,
		ClientUpdatedAt: updatedAt,
		ServerCreatedAt: EpochZero,
		ServerUpdatedAt: EpochZero,
	}}
}

func TestMerge_NilSides(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := chatAt("a", base, base)

	require.Same(t, c, Merge[Chat](nil, c))
	require.Same(t, c, Merge[Chat](c, nil))
	require.Nil(t, Merge[Chat, *Chat](nil, nil))
}

func TestMerge_NewerWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := chatAt("a", base, base)
	newer := chatAt("a", base, base.Add(time.Second))

	require.Same(t, newer, Merge[Chat](older, newer))
	require.Same(t, newer, Merge[Chat](newer, older))
}

func TestMerge_TieGoesToRemote(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	local := chatAt("a", base, base)
	local.Topic = "A"
	remote := chatAt("a", base, base)
	remote.Topic = "B"

	merged := Merge[Chat](local, remote)
	require.Same(t, remote, merged)
	require.Equal(t, "B", merged.Topic)
}

func TestMergeSets_PairsAndDropsTombstones(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	localOnly := chatAt("local-only", base, base)
	remoteOnly := chatAt("remote-only", base, base)

	// Same id on both sides, remote edited later.
	localStale := chatAt("shared", base, base)
	localStale.Topic = "old"
	remoteFresh := chatAt("shared", base, base.Add(time.Minute))
	remoteFresh.Topic = "new"

	// Deleted remotely: must vanish from the view even though the local
	// copy is still active.
	localAlive := chatAt("gone", base, base)
	remoteTombstone := chatAt("gone", base, base.Add(time.Minute))
	remoteTombstone.Deleted = true

	view := MergeSets[Chat](
		[]*Chat{localOnly, localStale, localAlive},
		[]*Chat{remoteFresh, remoteTombstone, remoteOnly},
		false,
	)

	byID := map[string]*Chat{}
	for _, c := range view {
		byID[c.ID] = c
	}
	require.Len(t, view, 3)
	require.Contains(t, byID, "local-only")
	require.Contains(t, byID, "remote-only")
	require.Equal(t, "new", byID["shared"].Topic)
	require.NotContains(t, byID, "gone")
}

func TestMergeSets_OrderByCreatedAt(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &Message{SyncMeta: SyncMeta{ID: "1", ClientCreatedAt: base, ClientUpdatedAt: base}, ChatID: "c"}
	second := &Message{SyncMeta: SyncMeta{ID: "2", ClientCreatedAt: base.Add(time.Second), ClientUpdatedAt: base}, ChatID: "c"}
	third := &Message{SyncMeta: SyncMeta{ID: "3", ClientCreatedAt: base.Add(2 * time.Second), ClientUpdatedAt: base}, ChatID: "c"}

	view := MergeSets[Message]([]*Message{third, first}, []*Message{second}, true)
	require.Len(t, view, 3)
	require.Equal(t, "1", view[0].ID)
	require.Equal(t, "2", view[1].ID)
	require.Equal(t, "3", view[2].ID)
}
