package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildThreadRows(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)

	t.Run("empty thread has no rows", func(t *testing.T) {
		assert.Empty(t, BuildThreadRows(nil, time.UTC))
	})

	t.Run("never starts with a separator", func(t *testing.T) {
		rows := BuildThreadRows([]Message{
			msg("m1", "c", "u1", "a", day1),
		}, time.UTC)
		require.Len(t, rows, 1)
		assert.Equal(t, RowMessage, rows[0].Kind)
	})

	t.Run("separator only between different calendar days", func(t *testing.T) {
		rows := BuildThreadRows([]Message{
			msg("m1", "c", "u1", "a", day1),
			msg("m2", "c", "u1", "b", day1.Add(time.Hour)),
			msg("m3", "c", "u1", "c", day2),
		}, time.UTC)

		require.Len(t, rows, 4)
		assert.Equal(t, RowMessage, rows[0].Kind)
		assert.Equal(t, RowMessage, rows[1].Kind)
		assert.Equal(t, RowDateSeparator, rows[2].Kind)
		assert.True(t, rows[2].Date.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, RowMessage, rows[3].Kind)
	})

	t.Run("group starts on sender change", func(t *testing.T) {
		rows := BuildThreadRows([]Message{
			msg("m1", "c", "u1", "a", day1),
			msg("m2", "c", "u1", "b", day1.Add(time.Minute)),
			msg("m3", "c", "u2", "c", day1.Add(2*time.Minute)),
			msg("m4", "c", "u2", "d", day1.Add(3*time.Minute)),
		}, time.UTC)

		require.Len(t, rows, 4)
		assert.True(t, rows[0].FirstOfGroup)
		assert.False(t, rows[1].FirstOfGroup)
		assert.True(t, rows[2].FirstOfGroup)
		assert.False(t, rows[3].FirstOfGroup)
	})

	t.Run("day change restarts the group even for the same sender", func(t *testing.T) {
		rows := BuildThreadRows([]Message{
			msg("m1", "c", "u1", "a", day1),
			msg("m2", "c", "u1", "b", day2),
		}, time.UTC)

		require.Len(t, rows, 3)
		assert.True(t, rows[0].FirstOfGroup)
		assert.Equal(t, RowDateSeparator, rows[1].Kind)
		assert.True(t, rows[2].FirstOfGroup)
	})

	t.Run("calendar day is evaluated in the given location", func(t *testing.T) {
		// 23:30 UTC and 00:30 UTC next day fall on the same day in UTC-2.
		tz := time.FixedZone("UTC-2", -2*60*60)
		rows := BuildThreadRows([]Message{
			msg("m1", "c", "u1", "a", time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)),
			msg("m2", "c", "u1", "b", time.Date(2026, 3, 11, 0, 30, 0, 0, time.UTC)),
		}, tz)

		require.Len(t, rows, 2)
		assert.Equal(t, RowMessage, rows[0].Kind)
		assert.Equal(t, RowMessage, rows[1].Kind)
	})
}
