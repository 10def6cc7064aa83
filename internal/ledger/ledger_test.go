package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, l.Close())
	})
	return l
}

var day = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRecordAndSeen(t *testing.T) {
	l := newLedger(t)

	seen, err := l.Seen("1234_a.sbd")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, l.Record(Entry{Name: "1234_a.sbd", Device: "1234", Source: "drive", ItemTime: day, Size: 3, RunID: "r1"}))

	seen, err = l.Seen("1234_a.sbd")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRecent_NewestFirst(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Record(Entry{Name: "1_a.sbd", Device: "1", Source: "gmail", ItemTime: day, RunID: "r1"}))
	require.NoError(t, l.Record(Entry{Name: "1_c.sbd", Device: "1", Source: "gmail", ItemTime: day.Add(48 * time.Hour), RunID: "r1"}))
	require.NoError(t, l.Record(Entry{Name: "2_b.sbd", Device: "2", Source: "gmail", ItemTime: day.Add(24 * time.Hour), RunID: "r1"}))

	entries, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1_c.sbd", entries[0].Name)
	assert.Equal(t, "2_b.sbd", entries[1].Name)
	assert.True(t, entries[0].ItemTime.Equal(day.Add(48*time.Hour)))
	assert.False(t, entries[0].StagedAt.IsZero())
}

func TestRecord_ReplacesByName(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Record(Entry{Name: "1_a.sbd", Device: "1", Source: "drive", ItemTime: day, Size: 1, RunID: "r1"}))
	require.NoError(t, l.Record(Entry{Name: "1_a.sbd", Device: "1", Source: "drive", ItemTime: day, Size: 2, RunID: "r2"}))

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Size)
	assert.Equal(t, "r2", entries[0].RunID)
}

func TestStats(t *testing.T) {
	l := newLedger(t)

	stats, err := l.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
	assert.Nil(t, stats.Newest)

	require.NoError(t, l.Record(Entry{Name: "1_a.sbd", Device: "1", Source: "drive", ItemTime: day, RunID: "r1"}))
	require.NoError(t, l.Record(Entry{Name: "2_a.sbd", Device: "2", Source: "drive", ItemTime: day.Add(time.Hour), RunID: "r1"}))
	require.NoError(t, l.Record(Entry{Name: "2_b.sbd", Device: "2", Source: "drive", ItemTime: day.Add(-time.Hour), RunID: "r1"}))

	stats, err = l.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Files)
	assert.EqualValues(t, 2, stats.Devices)
	require.NotNil(t, stats.Newest)
	assert.True(t, stats.Newest.Equal(day.Add(time.Hour)))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(Entry{Name: "1_a.sbd", Device: "1", Source: "drive", ItemTime: day, RunID: "r1"}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	seen, err := l.Seen("1_a.sbd")
	require.NoError(t, err)
	assert.True(t, seen)
}
