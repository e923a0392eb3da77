package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/pkg/cryptox"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/estatevault/portal/pkg/slogx"
)

var ErrBootstrapInvalid = errors.New("bootstrap admin email and password are required")

type BootstrapService struct {
	Store     store.Store
	Directory *AdminDirectory
}

// EnsureAdmin creates an active admin when the user table is empty. It
// reports whether a user was created.
func (s *BootstrapService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	l := slogx.FromContext(ctx)

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, ErrBootstrapInvalid
	}

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, storeErr("check users", err)
	}
	if !empty {
		l.Debug("bootstrap skipped, users exist")
		return false, nil
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return false, err
	}

	username, _, _ := strings.Cut(email, "@")
	admin := domain.User{
		ID:             idx.New().String(),
		Email:          email,
		Username:       username,
		PasswordHash:   &hash,
		Role:           domain.RoleAdmin,
		IsActive:       true,
		TwoFactorState: domain.TwoFactorDisabled,
	}
	if err := s.Store.Users().CreateUser(ctx, admin); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return false, nil
		}
		return false, storeErr("create admin", err)
	}
	if s.Directory != nil {
		s.Directory.Invalidate()
	}

	l.Info("bootstrap admin created", slog.String("user_id", admin.ID))
	return true, nil
}
