package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"accounting/internal/core"
	"accounting/internal/log"
	"accounting/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "accounting.db"), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_Users(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	u, err := repo.CreateUser(ctx, "  Alice@Example.com ", []byte("hash"))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEmpty(t, u.ID)

	_, err = repo.CreateUser(ctx, "alice@example.com", []byte("other"))
	assert.ErrorIs(t, err, store.ErrEmailTaken)

	got, hash, err := repo.UserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, []byte("hash"), hash)

	byID, err := repo.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, _, err = repo.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.UserByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteRepository_RecordsLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	alice, err := repo.CreateUser(ctx, "alice@example.com", []byte("x"))
	require.NoError(t, err)
	bob, err := repo.CreateUser(ctx, "bob@example.com", []byte("x"))
	require.NoError(t, err)

	pay, err := repo.Insert(ctx, core.NewRecord{UserID: alice.ID, Amount: decimal.RequireFromString("100"), Type: core.Income, Note: "pay"})
	require.NoError(t, err)
	lunch, err := repo.Insert(ctx, core.NewRecord{UserID: alice.ID, Amount: decimal.RequireFromString("40.25"), Type: core.Expense, Note: "lunch"})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, core.NewRecord{UserID: bob.ID, Amount: decimal.RequireFromString("7"), Type: core.Expense, Note: "bob"})
	require.NoError(t, err)

	assert.True(t, lunch.CreatedAt.After(pay.CreatedAt), "frozen clock must still yield increasing timestamps")

	records, err := repo.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, lunch.ID, records[0].ID, "newest first")
	assert.Equal(t, pay.ID, records[1].ID)
	assert.True(t, records[0].Amount.Equal(decimal.RequireFromString("40.25")))
	assert.Equal(t, core.Expense, records[0].Type)
	assert.Equal(t, "lunch", records[0].Note)

	err = repo.Delete(ctx, bob.ID, lunch.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound), "other users cannot delete")

	require.NoError(t, repo.Delete(ctx, alice.ID, lunch.ID))
	records, err = repo.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, pay.ID, records[0].ID)

	assert.ErrorIs(t, repo.Delete(ctx, alice.ID, lunch.ID), store.ErrNotFound)
}

func TestSQLiteRepository_EmptyList(t *testing.T) {
	repo := newTestRepo(t)

	records, err := repo.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounting.db")

	repo, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	u, err := repo.CreateUser(ctx, "carol@example.com", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Ping(ctx))
	got, err := repo.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", got.Email)
}

func TestDialect_Rebind(t *testing.T) {
	q := `DELETE FROM records WHERE id = ? AND user_id = ?`

	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, `DELETE FROM records WHERE id = $1 AND user_id = $2`, Postgres.Rebind(q))
	assert.Equal(t, "postgres", Postgres.DriverName())
	assert.Equal(t, "sqlite", SQLite.DriverName())
}
