package refreshtokens

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/reservation/internal/common"
	"github.com/dmitrijs2005/reservation/internal/server/models"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/sqlitetest"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, repo users.Repository, email string) int64 {
	t.Helper()
	u, err := repo.Create(context.Background(), &models.User{Email: email, PasswordHash: "h"})
	require.NoError(t, err)
	return u.ID
}

func TestSQLiteRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	repo := NewSQLiteRepository(db)
	userID := seedUser(t, users.NewSQLiteRepository(db), "alice@example.com")

	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, userID, "h1", expires))
	require.ErrorIs(t, repo.Create(ctx, userID, "h1", expires), common.ErrConflict)

	got, err := repo.Find(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, userID, got.UserID)
	require.WithinDuration(t, expires, got.Expires, time.Second)

	require.NoError(t, repo.Delete(ctx, "h1"))
	require.ErrorIs(t, repo.Delete(ctx, "h1"), common.ErrorNotFound, "second delete hits nothing")

	_, err = repo.Find(ctx, "h1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLiteRepository_DeleteByUserAndExpired(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	repo := NewSQLiteRepository(db)
	ur := users.NewSQLiteRepository(db)
	alice := seedUser(t, ur, "alice@example.com")
	bob := seedUser(t, ur, "bob@example.com")

	now := time.Now()
	require.NoError(t, repo.Create(ctx, alice, "a1", now.Add(time.Hour)))
	require.NoError(t, repo.Create(ctx, alice, "a2", now.Add(-time.Minute)))
	require.NoError(t, repo.Create(ctx, bob, "b1", now.Add(-time.Hour)))
	require.NoError(t, repo.Create(ctx, bob, "b2", now.Add(time.Hour)))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = repo.DeleteByUser(ctx, alice)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = repo.Find(ctx, "b2")
	require.NoError(t, err)
}

func TestSQLiteRepository_ForeignKey(t *testing.T) {
	repo := NewSQLiteRepository(sqlitetest.Open(t))
	err := repo.Create(context.Background(), 12345, "orphan", time.Now().Add(time.Hour))
	require.Error(t, err, "token must reference an existing user")
}
