package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/store"
	"github.com/aussiebroadwan/starter/pkg/pagination"
)

type UserService struct {
	Store store.Store
}

// Get returns the user with id or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// List returns one page of users, oldest first.
func (s *UserService) List(ctx context.Context, p pagination.Params) (pagination.Page[domain.User], error) {
	total, err := s.Store.Users().CountUsers(ctx)
	if err != nil {
		return pagination.Page[domain.User]{}, err
	}

	users, err := s.Store.Users().ListUsers(ctx, p.Offset(), p.Limit)
	if err != nil {
		return pagination.Page[domain.User]{}, err
	}

	return pagination.NewPage(users, total, p), nil
}
