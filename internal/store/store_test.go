package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "readings.db"), logging.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), model.Reading{MoteID: 1, X: 1}))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLatestNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		moteID := 1
		if i%2 == 1 {
			moteID = 7
		}
		require.NoError(t, s.Record(ctx, model.Reading{
			MoteID:     moteID,
			X:          i,
			Y:          -i,
			Z:          1000 + i,
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.Latest(ctx, Query{Limit: 3})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{4, 3, 2}, []int{all[0].X, all[1].X, all[2].X})
	assert.True(t, all[0].ReceivedAt.Equal(base.Add(4*time.Second)))

	mote := 7
	only7, err := s.Latest(ctx, Query{MoteID: &mote})
	require.NoError(t, err)
	require.Len(t, only7, 2)
	assert.Equal(t, model.Reading{MoteID: 7, X: 3, Y: -3, Z: 1003, ReceivedAt: base.Add(3 * time.Second)}, only7[0])
}

func TestAcceptStampsMissingTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Accept(ctx, model.Reading{MoteID: 2, X: 9})

	got, err := s.Latest(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].X)
	assert.WithinDuration(t, time.Now(), got[0].ReceivedAt, time.Minute)
}

func TestLatestCapsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	for i := 0; i < MaxLimit+5; i++ {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO readings (mote_id, x, y, z, received_at) VALUES (?, ?, ?, ?, ?)`,
			1, i, 0, 0, int64(i))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	got, err := s.Latest(ctx, Query{Limit: 1 << 40})
	require.NoError(t, err)
	assert.Len(t, got, MaxLimit)
	assert.Equal(t, MaxLimit+4, got[0].X)
}
