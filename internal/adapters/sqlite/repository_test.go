package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvizTraderBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trading-bot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func TestRepository_RecordAndQueryEvents(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	entryTS := day.Add(10*time.Hour + 31*time.Minute)
	exitTS := day.Add(11*time.Hour + 2*time.Minute)
	closeTS := day.Add(16 * time.Hour)

	require.NoError(t, repo.RecordEntry(ctx, "ABCD", entryTS, 50.05, 20, "ord-1"))
	require.NoError(t, repo.RecordExitFill(ctx, "ABCD", exitTS, 55.06, 5, 25.05, "ord-2"))
	require.NoError(t, repo.RecordClose(ctx, "ABCD", closeTS, 25.05))

	t.Run("fills exclude close events", func(t *testing.T) {
		fills, err := repo.FillsOn(ctx, day)
		require.NoError(t, err)
		require.Len(t, fills, 2)

		assert.Equal(t, ports.EventEntry, fills[0].Event)
		assert.Equal(t, "ABCD", fills[0].Symbol)
		assert.Equal(t, 50.05, fills[0].Price)
		assert.Equal(t, int64(20), fills[0].Qty)
		assert.Equal(t, "ord-1", fills[0].OrderID)

		assert.Equal(t, ports.EventExitFill, fills[1].Event)
		assert.Equal(t, int64(5), fills[1].Qty)
		assert.Equal(t, 25.05, fills[1].PnLDelta)
		assert.Equal(t, "ord-2", fills[1].OrderID)
	})

	t.Run("events include close", func(t *testing.T) {
		events, err := repo.EventsOn(ctx, day)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, ports.EventClose, events[2].Event)
		assert.Equal(t, 25.05, events[2].PnLDelta)
		assert.Empty(t, events[2].OrderID)
	})

	t.Run("ordered by timestamp", func(t *testing.T) {
		events, err := repo.EventsOn(ctx, day)
		require.NoError(t, err)
		for i := 1; i < len(events); i++ {
			assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
		}
	})
}

func TestRepository_DayBounds(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	prev := day.AddDate(0, 0, -1)
	next := day.AddDate(0, 0, 1)

	// One fill just before midnight, one at midnight, one just before the
	// next midnight.
	require.NoError(t, repo.RecordEntry(ctx, "OLD", prev.Add(23*time.Hour+59*time.Minute), 10, 1, "ord-a"))
	require.NoError(t, repo.RecordEntry(ctx, "EDGE", day, 11, 1, "ord-b"))
	require.NoError(t, repo.RecordEntry(ctx, "LATE", day.Add(23*time.Hour+59*time.Minute), 12, 1, "ord-c"))
	require.NoError(t, repo.RecordEntry(ctx, "NEW", next, 13, 1, "ord-d"))

	fills, err := repo.FillsOn(ctx, day)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "EDGE", fills[0].Symbol)
	assert.Equal(t, "LATE", fills[1].Symbol)
}

func TestRepository_EmptyDay(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	fills, err := repo.FillsOn(ctx, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, fills)

	events, err := repo.EventsOn(ctx, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}
