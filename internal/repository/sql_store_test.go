package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"assistant-web/internal/domain"
)

func openTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// Every pooled connection would otherwise open its own in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return store
}

func TestNewSQLStore_RejectsNilDB(t *testing.T) {
	_, err := NewSQLStore(nil)
	require.Error(t, err)
}

func TestOpenSQLStore_UnknownDriver(t *testing.T) {
	_, err := OpenSQLStore("postgres", "dsn")
	require.ErrorContains(t, err, "unsupported sql driver")
}

func TestSQLStore_RoundTrip(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()
	expires := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	got, err := store.Load(ctx, "b-1")
	require.NoError(t, err)
	require.Nil(t, got)

	in := &domain.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    expires,
		User:         domain.User{ID: "user-1", Email: "ana@example.com"},
	}
	require.NoError(t, store.Save(ctx, "b-1", in))

	got, err = store.Load(ctx, "b-1")
	require.NoError(t, err)
	require.Equal(t, "access", got.AccessToken)
	require.Equal(t, "refresh", got.RefreshToken)
	require.Equal(t, "bearer", got.TokenType)
	require.True(t, expires.Equal(got.ExpiresAt))
	require.Equal(t, in.User, got.User)
}

func TestSQLStore_SaveOverwrites(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b-1", &domain.Session{AccessToken: "old"}))
	require.NoError(t, store.Save(ctx, "b-1", &domain.Session{AccessToken: "new"}))

	got, err := store.Load(ctx, "b-1")
	require.NoError(t, err)
	require.Equal(t, "new", got.AccessToken)

	var count int64
	require.NoError(t, store.db.Model(&sessionRecord{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSQLStore_Delete(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b-1", &domain.Session{AccessToken: "a"}))
	require.NoError(t, store.Save(ctx, "b-2", &domain.Session{AccessToken: "b"}))
	require.NoError(t, store.Delete(ctx, "b-1"))
	require.NoError(t, store.Delete(ctx, "missing"))

	got, err := store.Load(ctx, "b-1")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = store.Load(ctx, "b-2")
	require.NoError(t, err)
	require.Equal(t, "b", got.AccessToken)
}

func TestSQLStore_ExpiredRecordIsMissing(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	require.NoError(t, store.Save(ctx, "b-1", &domain.Session{AccessToken: "a"}))

	store.now = func() time.Time { return base.Add(ttlDuration + time.Hour) }
	got, err := store.Load(ctx, "b-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLStore_SaveNil(t *testing.T) {
	store := openTestSQLStore(t)
	require.Error(t, store.Save(context.Background(), "b-1", nil))
}
