package recordstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedy/internal/splits"
)

var seq = splits.SectionSequence{"Forest", "Castle", "Tower"}

func record(game string, start time.Time, ms ...int64) splits.Record {
	rec := splits.NewRecord(game, seq)
	rec.ID = "run-" + start.Format("150405")
	rec.StartedAt = start
	for i, t := range ms {
		rec.Sections[i].Time = splits.Millis(t)
	}
	return rec
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := Open("file", filepath.Join(dir, "files"), "")
	require.NoError(t, err)
	sq, err := Open("sqlite", dir, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		fs.Close()
		sq.Close()
	})
	return map[string]Store{"file": fs, "sqlite": sq}
}

func TestStores_sequence(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LoadSequence(ctx, "sm64")
			assert.ErrorIs(t, err, splits.ErrUnknownGame)

			require.NoError(t, store.SaveSequence(ctx, "sm64", seq))
			require.NoError(t, store.SaveSequence(ctx, "celeste", splits.SectionSequence{"1A"}))
			assert.ErrorIs(t, store.SaveSequence(ctx, "bad", splits.SectionSequence{"x", "x"}), splits.ErrInvalidSequence)

			got, err := store.LoadSequence(ctx, "sm64")
			require.NoError(t, err)
			assert.True(t, got.Equal(seq))

			games, err := store.Games(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"celeste", "sm64"}, games)
		})
	}
}

func TestStores_records(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			pb, sob, err := store.Load(ctx, "sm64", seq)
			require.NoError(t, err, "missing records are not an error")
			assert.Nil(t, pb)
			assert.Nil(t, sob)

			require.NoError(t, store.PersistPB(ctx, record("sm64", start, 10000, 22000, 31000)))
			require.NoError(t, store.PersistSumOfBest(ctx, record("sm64", start, 9000, 20000, 30000)))
			require.NoError(t, store.PersistPB(ctx, record("sm64", start, 9500, 21000, 30500)))

			pb, sob, err = store.Load(ctx, "sm64", seq)
			require.NoError(t, err)
			require.NotNil(t, pb)
			require.NotNil(t, sob)
			final, _ := pb.Final()
			assert.Equal(t, int64(30500), final, "pb overwritten")
			assert.True(t, pb.StartedAt.Equal(start))
			sobFinal, _ := sob.Final()
			assert.Equal(t, int64(30000), sobFinal)

			_, _, err = store.Load(ctx, "sm64", splits.SectionSequence{"Forest", "Castle"})
			assert.ErrorIs(t, err, splits.ErrConfigMismatch)
		})
	}
}

func TestStores_history(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				at := base.Add(time.Duration(i) * time.Minute)
				require.NoError(t, store.PersistHistory(ctx, record("sm64", at, 1000, 2000, int64(3000+i))))
			}
			// a retry of the same run rewrites its entry
			require.NoError(t, store.PersistHistory(ctx, record("sm64", base, 1000, 2000, 3000)))

			runs, err := store.History(ctx, "sm64")
			require.NoError(t, err)
			require.Len(t, runs, 3)
			assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Minute)), "newest first")
			final, _ := runs[0].Final()
			assert.Equal(t, int64(3002), final)

			runs, err = store.History(ctx, "other")
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}

func TestFileStore_malformedRecordIsIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.PersistSumOfBest(ctx, record("sm64", time.Now(), 1, 2, 3)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sm64", pbFile), []byte("sections: [unterminated"), 0o644))

	pb, sob, err := store.Load(ctx, "sm64", seq)
	assert.ErrorIs(t, err, splits.ErrMalformedRecord)
	assert.Nil(t, pb)
	assert.NotNil(t, sob, "sibling record still loads")
}

func TestFileStore_rejectsPathLikeGames(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	for _, game := range []string{"", "..", "a/b", `a\b`} {
		_, err := store.LoadSequence(context.Background(), game)
		assert.Error(t, err, "game %q", game)
	}
}

func TestFileStore_lookupsLeaveDataDirUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = store.LoadSequence(ctx, "ghost")
	assert.ErrorIs(t, err, splits.ErrUnknownGame)
	pb, sob, err := store.Load(ctx, "ghost", seq)
	assert.NoError(t, err)
	assert.Nil(t, pb)
	assert.Nil(t, sob)
	hist, err := store.History(ctx, "ghost")
	assert.NoError(t, err)
	assert.Empty(t, hist)

	_, err = os.Stat(filepath.Join(dir, "ghost"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStores_rejectStoredInvalidSequence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := NewFileStore(filepath.Join(dir, "files"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "files", "sm64"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "files", "sm64", sequenceFile), []byte("sections: [Forest, Forest]\n"), 0o644))
	_, err = fs.LoadSequence(ctx, "sm64")
	assert.ErrorIs(t, err, splits.ErrInvalidSequence)

	sq, err := NewSQLiteStore(filepath.Join(dir, "t.db"))
	require.NoError(t, err)
	defer sq.Close()
	_, err = sq.db.Exec(`INSERT INTO games (game, sections) VALUES ('sm64', '["Forest","Forest"]')`)
	require.NoError(t, err)
	_, err = sq.LoadSequence(ctx, "sm64")
	assert.ErrorIs(t, err, splits.ErrInvalidSequence)
}

func TestSQLiteStore_malformedRecordIsIsolated(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PersistSumOfBest(ctx, record("sm64", time.Now(), 1, 2, 3)))
	_, err = store.db.Exec(`INSERT INTO records (game, kind, payload) VALUES ('sm64', 'pb', '{not json')`)
	require.NoError(t, err)

	pb, sob, err := store.Load(ctx, "sm64", seq)
	assert.ErrorIs(t, err, splits.ErrMalformedRecord)
	assert.Nil(t, pb)
	assert.NotNil(t, sob)
}

func TestOpen_unknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir(), "")
	assert.Error(t, err)
}
