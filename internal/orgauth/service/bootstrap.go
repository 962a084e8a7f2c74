package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/cryptox"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
)

var ErrBootstrapAlready = errors.New("system already bootstrapped")

// BootstrapService creates the first admin of an empty installation.
type BootstrapService struct {
	Store       store.Store
	Credentials *CredentialService
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates an active admin named name. An empty password is
// replaced by a generated one, which is returned so it can be shown once.
func (s *BootstrapService) Bootstrap(
	ctx context.Context,
	hooks Hooks,
	name, email, password string,
) (domain.UserID, string, error) {
	l := slogx.FromContext(ctx)

	// 1. Check if already bootstrapped
	if done, err := s.IsBootstrapped(ctx); err != nil {
		return 0, "", err
	} else if done {
		return 0, "", ErrBootstrapAlready
	}

	// 2. Generate a password if none was configured
	if password == "" {
		var err error
		if password, err = cryptox.GeneratePassword(); err != nil {
			l.Error("failed to generate admin password", slog.Any("error", err))
			return 0, "", err
		}
	}

	// 3. Create the admin
	var id domain.UserID
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		id, err = s.Credentials.CreateUser(ctx, tx, hooks, domain.NewUser{
			Name:     name,
			Password: password,
			Email:    email,
			Admin:    true,
		})
		return err
	})
	if err != nil {
		l.Error("failed to create admin user", slog.Any("error", err))
		return 0, "", err
	}

	l.Info("bootstrap completed", slog.Int64("admin_user_id", int64(id)), slog.String("name", NormalizeName(name)))
	return id, password, nil
}
