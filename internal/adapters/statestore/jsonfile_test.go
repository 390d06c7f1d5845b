package statestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store, err := New(Config{Path: path, Logger: nopLogger{}})
	require.NoError(t, err)
	return store, path
}

func sampleSnapshot(t *testing.T) *domain.Snapshot {
	t.Helper()
	stages, err := domain.BuildExitStages(50.0, 20, []float64{0.25, 0.25, 0.25, 0.25})
	require.NoError(t, err)
	stages[0].OrderID = "ord-1"
	stages[0].Filled = true

	snap := domain.NewSnapshot()
	snap.Positions["ABCD"] = &domain.PositionRecord{
		Symbol:       "ABCD",
		Status:       domain.StatusPartiallyExited,
		EntryOrderID: "ord-0",
		EntryPrice:   50.0,
		ShareQty:     20,
		ExitStages:   stages,
		RealizedPnL:  25.0,
		OpenedAt:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	snap.TradedDates["ABCD"] = "2024-03-15"
	snap.EODDoneDate = "2024-03-14"
	return snap
}

func TestLoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	store, _ := newStore(t)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Positions)
	assert.Empty(t, snap.TradedDates)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	original := sampleSnapshot(t)

	require.NoError(t, store.Save(ctx, original))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)

	rec := loaded.Positions["ABCD"]
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusPartiallyExited, rec.Status)
	assert.Equal(t, 50.0, rec.EntryPrice)
	assert.Equal(t, int64(20), rec.ShareQty)
	require.Len(t, rec.ExitStages, 4)
	assert.True(t, rec.ExitStages[0].Filled)
	assert.Equal(t, "ord-1", rec.ExitStages[0].OrderID)
	assert.Equal(t, 25.0, rec.RealizedPnL)
	assert.Equal(t, "2024-03-15", loaded.TradedDates["ABCD"])
	assert.Equal(t, "2024-03-14", loaded.EODDoneDate)
}

func TestCrashMidWriteKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	store, path := newStore(t)
	require.NoError(t, store.Save(ctx, sampleSnapshot(t)))

	// A crash between temp write and rename leaves a stray .tmp file; the
	// real snapshot must be untouched and loads cleanly.
	require.NoError(t, os.WriteFile(path+".tmp", []byte(`{"positions": {truncated`), 0644))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, loaded.Positions, "ABCD")

	// The next save replaces the stray temp file.
	require.NoError(t, store.Save(ctx, loaded))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadCorruptFile(t *testing.T) {
	store, path := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ports.ErrSnapshotCorrupt)
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	store, path := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	payload := `{
		"positions": {},
		"traded_dates": {"ABCD": "2024-03-15"},
		"schema_version": 7,
		"some_future_field": {"nested": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", snap.TradedDates["ABCD"])
}

func TestLoadRepairsNilMaps(t *testing.T) {
	store, path := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Positions)
	require.NotNil(t, snap.TradedDates)
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "bot.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, ports.ErrLockHeld)

	require.NoError(t, lock.Release())
	lock2, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())

	// Releasing twice is harmless.
	require.NoError(t, lock2.Release())
}
