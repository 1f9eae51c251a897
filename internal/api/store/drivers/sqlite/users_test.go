package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/store"
	"github.com/aussiebroadwan/starter/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestUsersRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	users := s.Users()

	u := domain.User{
		ID:            idx.New().String(),
		Email:         "ada@example.com",
		Name:          "Ada",
		Image:         "https://example.com/ada.png",
		EmailVerified: true,
	}
	require.NoError(t, users.CreateUser(ctx, u))

	t.Run("get by id and email", func(t *testing.T) {
		got, err := users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Email, got.Email)
		require.Equal(t, u.Name, got.Name)
		require.True(t, got.EmailVerified)
		require.False(t, got.CreatedAt.IsZero())

		got, err = users.GetUserByEmail(ctx, u.Email)
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("missing rows map to ErrNotFound", func(t *testing.T) {
		_, err := users.GetUserByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = users.GetUserByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		err = users.UpdateProfile(ctx, domain.User{ID: "nope"})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email maps to ErrAlreadyExists", func(t *testing.T) {
		err := users.CreateUser(ctx, domain.User{ID: idx.New().String(), Email: u.Email})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("update profile", func(t *testing.T) {
		upd := u
		upd.Name = "Ada Lovelace"
		upd.EmailVerified = false
		require.NoError(t, users.UpdateProfile(ctx, upd))

		got, err := users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Ada Lovelace", got.Name)
		require.False(t, got.EmailVerified)
		require.Equal(t, u.Email, got.Email)
	})
}

func TestListAndCountUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, s.Users().CreateUser(ctx, domain.User{
			ID:        idx.New().String(),
			Email:     fmt.Sprintf("user%d@example.com", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	page, err := s.Users().ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "user2@example.com", page[0].Email)
	require.Equal(t, "user3@example.com", page[1].Email)

	tail, err := s.Users().ListUsers(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, domain.User{ID: idx.New().String(), Email: "tx@example.com"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = s.Users().GetUserByEmail(ctx, "tx@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, domain.User{ID: idx.New().String(), Email: "tx@example.com"})
	}))
	_, err = s.Users().GetUserByEmail(ctx, "tx@example.com")
	require.NoError(t, err)
}
