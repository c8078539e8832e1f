package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeFormat_LexicographicOrder(t *testing.T) {
	// Storage relies on encoded timestamps comparing like the instants
	// they encode.
	a := FormatTime(time.Date(2026, 3, 1, 9, 59, 59, 999e6, time.UTC))
	b := FormatTime(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	c := FormatTime(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))

	require.Less(t, a, b)
	require.Less(t, b, c)
}

func TestParseTime_AcceptsForeignPrecision(t *testing.T) {
	for _, s := range []string{
		"2026-03-01T10:00:00.000Z",
		"2026-03-01T10:00:00Z",
		"2026-03-01T10:00:00.123456789Z",
		"2026-03-01T11:00:00.000+01:00",
	} {
		parsed, err := ParseTime(s)
		require.NoError(t, err, s)
		require.Equal(t, time.UTC, parsed.Location())
	}

	_, err := ParseTime("not-a-timestamp")
	require.Error(t, err)
}

func TestChatDTO_RoundTrip(t *testing.T) {
	orig := NewChat("hello")
	orig.AuthorID = "owner-1"
	orig.Pinned = true

	back, err := ChatFromDTO(orig.ToDTO())
	require.NoError(t, err)
	require.Equal(t, orig.ID, back.ID)
	require.Equal(t, orig.AuthorID, back.AuthorID)
	require.Equal(t, "hello", back.Topic)
	require.True(t, back.Pinned)
	require.Equal(t, ChatDraft, back.Type)
	// Round-tripping truncates to the millisecond wire precision.
	require.Equal(t, orig.ClientUpdatedAt.Truncate(time.Millisecond), back.ClientUpdatedAt)
}

func TestMessageFromDTO_BadTimestamp(t *testing.T) {
	dto := NewMessage("chat-1", RoleUser, "hi").ToDTO()
	dto.ClientUpdatedAt = "garbage"

	_, err := MessageFromDTO(dto)
	require.Error(t, err)
	require.Contains(t, err.Error(), dto.ID)
}
