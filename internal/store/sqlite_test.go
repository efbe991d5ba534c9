package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pin-ingest/internal/resilience"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "pins.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	require.Len(t, applied, 1)
	return s
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)

	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSQLiteStore_BulkCreate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	res, err := s.BulkCreate(ctx, testDrafts())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	n, err := s.CountPins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var lat, lng *float64
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude FROM pins WHERE id = ?`, testDrafts()[1].ID).Scan(&lat, &lng))
	assert.Nil(t, lat, "unresolved coordinate is stored as NULL")
	assert.Nil(t, lng)
}

func TestSQLiteStore_BulkCreate_AllOrNothing(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.BulkCreate(ctx, testDrafts()[:1])
	require.NoError(t, err)

	// The second chunk repeats an ID, so none of it may be stored.
	_, err = s.BulkCreate(ctx, testDrafts())
	require.Error(t, err)

	n, err := s.CountPins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_DeadLetterLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	transient := resilience.NewDLQEntry("api", testDrafts(), resilience.NewTransientError(errors.New("503"), 503))
	permanent := resilience.NewDLQEntry("api", testDrafts()[:1], errors.New("400 bad request"))
	require.NoError(t, s.SaveDeadLetter(ctx, transient))
	require.NoError(t, s.SaveDeadLetter(ctx, permanent))

	all, err := s.ListDeadLetters(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyTransient, err := s.ListDeadLetters(ctx, resilience.DLQFilter{ErrorType: resilience.ErrorTransient})
	require.NoError(t, err)
	require.Len(t, onlyTransient, 1)
	assert.Equal(t, transient.ID, onlyTransient[0].ID)
	assert.Len(t, onlyTransient[0].Drafts, 2)

	got, err := s.GetDeadLetter(ctx, permanent.ID)
	require.NoError(t, err)
	assert.Equal(t, "api", got.Sink)
	assert.Equal(t, testDrafts()[0].Address, got.Drafts[0].Address)

	// Failed replays count up until the entry is exhausted.
	for range resilience.DefaultMaxReplays {
		require.NoError(t, s.RecordReplay(ctx, permanent.ID, errors.New("still bad")))
	}
	all, err = s.ListDeadLetters(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.RecordReplay(ctx, transient.ID, nil))
	n, err := s.CountDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetDeadLetter(ctx, transient.ID)
	assert.Error(t, err)
	assert.Error(t, s.RecordReplay(ctx, transient.ID, nil))
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), "", "")
	assert.Error(t, err)

	_, err = Open(context.Background(), "mysql", "x")
	assert.Error(t, err)

	s, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
	assert.NoError(t, s.Close())
}
