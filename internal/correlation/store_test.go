package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/squadhq/intake/internal/database"
)

func newSQLiteStore(t *testing.T, ttl time.Duration) *GormStore {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "correlation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	store, err := NewGormStore(db, ttl)
	require.NoError(t, err)
	return store
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put then get round trips", func(t *testing.T) {
		s := newStore(t)
		before := time.Now().Add(-time.Second)

		_, err := s.Put(ctx, "r1", map[string]any{"clientDraft": "X"})
		require.NoError(t, err)

		rec, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "r1", rec.RequestID)
		assert.Equal(t, "X", rec.Field("clientDraft"))
		assert.True(t, rec.Ready)
		assert.False(t, rec.Timestamp.Before(before.UTC().Truncate(time.Second)))
	})

	t.Run("get on unknown id is not found", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Get(ctx, "never-written")
		assert.Nil(t, rec)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("last write wins without merging", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, "r2", map[string]any{"a": "1", "b": "keep?"})
		require.NoError(t, err)
		_, err = s.Put(ctx, "r2", map[string]any{"a": "2"})
		require.NoError(t, err)

		rec, err := s.Get(ctx, "r2")
		require.NoError(t, err)
		assert.Equal(t, "2", rec.Field("a"))
		assert.NotContains(t, rec.AnalysisData, "b")
	})

	t.Run("status reflects presence", func(t *testing.T) {
		s := newStore(t)
		st, err := s.Status(ctx, "r3")
		require.NoError(t, err)
		assert.False(t, st.Ready)
		assert.Nil(t, st.Timestamp)

		_, err = s.Put(ctx, "r3", map[string]any{})
		require.NoError(t, err)

		st, err = s.Status(ctx, "r3")
		require.NoError(t, err)
		assert.True(t, st.Ready)
		assert.NotNil(t, st.Timestamp)
	})

	t.Run("missing request id is rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, "", map[string]any{"clientDraft": "X"})
		assert.ErrorIs(t, err, ErrRequestIDRequired)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, "k1", map[string]any{"v": "one"})
		require.NoError(t, err)
		_, err = s.Put(ctx, "k2", map[string]any{"v": "two"})
		require.NoError(t, err)

		r1, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		r2, err := s.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "one", r1.Field("v"))
		assert.Equal(t, "two", r2.Field("v"))
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestGormStore_SQLite(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return newSQLiteStore(t, 0) })
}

func TestMemoryStore_ConcurrentWriters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i%10)
			_, err := s.Put(ctx, id, map[string]any{"n": i})
			assert.NoError(t, err)
			_, _ = s.Get(ctx, id)
			_, _ = s.Status(ctx, id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	input := map[string]any{"clientDraft": "X"}

	_, err := s.Put(ctx, "r1", input)
	require.NoError(t, err)
	input["clientDraft"] = "mutated"

	rec, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	rec.AnalysisData["clientDraft"] = "also mutated"

	again, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "X", again.Field("clientDraft"))
}

func TestGormStore_TTL(t *testing.T) {
	s := newSQLiteStore(t, time.Hour)
	ctx := context.Background()

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.Put(ctx, "old", map[string]any{"clientDraft": "X"})
	require.NoError(t, err)

	clock = clock.Add(30 * time.Minute)
	_, err = s.Put(ctx, "fresh", map[string]any{"clientDraft": "Y"})
	require.NoError(t, err)

	clock = clock.Add(45 * time.Minute)
	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	st, err := s.Status(ctx, "old")
	require.NoError(t, err)
	assert.False(t, st.Ready)

	_, err = s.Get(ctx, "fresh")
	assert.NoError(t, err)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormStore_Postgres_NotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "correlation_records" WHERE request_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "analysis_data", "ready", "stored_at"}))

	s := newGormStore(db, 0)
	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Postgres_QueryFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "correlation_records"`).
		WillReturnError(fmt.Errorf("connection reset"))

	s := newGormStore(db, 0)
	st, err := s.Status(context.Background(), "r1")
	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, st.Ready)
}

func TestNewGormStore_NilDB(t *testing.T) {
	_, err := NewGormStore(nil, 0)
	assert.Error(t, err)
}

func TestRecord_JSON(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	rec := Record{
		RequestID:    "r1",
		AnalysisData: map[string]any{"clientDraft": "X", "ready": false, "timestamp": "spoofed"},
		Timestamp:    ts,
		Ready:        true,
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clientDraft":"X","ready":true,"timestamp":"2025-01-02T03:04:05.006Z"}`, string(raw))

	var back Record
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Ready)
	assert.True(t, ts.Equal(back.Timestamp))
	assert.Equal(t, map[string]any{"clientDraft": "X"}, back.AnalysisData)
}

func TestStatus_JSON(t *testing.T) {
	raw, err := json.Marshal(Status{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ready":false,"timestamp":null}`, string(raw))

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err = json.Marshal(Status{Ready: true, Timestamp: &ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ready":true,"timestamp":"2025-01-02T03:04:05.000Z"}`, string(raw))

	var back Status
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NotNil(t, back.Timestamp)
	assert.True(t, ts.Equal(*back.Timestamp))
}
