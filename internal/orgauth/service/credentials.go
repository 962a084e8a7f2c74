package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/cryptox"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
	"github.com/google/uuid"
)

// CredentialService owns user records and password verification.
type CredentialService struct {
	Store  store.Store
	Config Config
	Now    func() time.Time
}

func (s *CredentialService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// NormalizeName is the canonical form user names are stored and looked up in.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CreateUser inserts nu and runs the host's user created hook inside tx. The name is
// lowercased and the password digested with a fresh salt. A duplicate name
// or uuid returns ErrConflict.
func (s *CredentialService) CreateUser(
	ctx context.Context,
	tx store.Tx,
	hooks Hooks,
	nu domain.NewUser,
) (domain.UserID, error) {
	l := slogx.FromContext(ctx)

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return 0, err
	}

	id := uuid.New()
	if nu.UUID != nil {
		id = *nu.UUID
	}

	uid, err := tx.Users().CreateUser(ctx, domain.User{
		UUID:            id,
		Name:            NormalizeName(nu.Name),
		PasswordHash:    cryptox.DigestPassword(nu.Password, salt),
		Salt:            salt,
		Email:           strings.TrimSpace(nu.Email),
		RegistrationKey: nu.RegistrationKey,
		Admin:           nu.Admin,
		Active:          true,
		RemoteURL:       nu.RemoteURL,
		Cookie:          nu.Cookie,
		CreatedAt:       s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return 0, ErrConflict
		}
		return 0, err
	}

	err = hooks.userCreated(ctx, tx.Querier(), CreatedUser{
		ID:        uid,
		Creator:   nu.CreatorID,
		RemoteURL: nu.RemoteURL,
		Data:      nu.Data,
	})
	if err != nil {
		l.Error("user created hook failed", slog.Int64("user_id", int64(uid)), slog.Any("error", err))
		return 0, fmt.Errorf("user created hook: %w", err)
	}

	l.Info("user created", slog.Int64("user_id", int64(uid)), slog.Bool("pending", nu.RegistrationKey != nil))
	return uid, nil
}

// VerifyPassword reports whether candidate is u's password.
func (s *CredentialService) VerifyPassword(u domain.User, candidate string) bool {
	return cryptox.VerifyPassword(candidate, u.Salt, u.PasswordHash) == nil
}

// ChangePassword replaces the password of a registered user after checking
// the old one.
func (s *CredentialService) ChangePassword(ctx context.Context, id domain.UserID, oldPwd, newPwd string) error {
	u, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if !u.Registered() || !s.VerifyPassword(u, oldPwd) {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, s.Store, u, newPwd)
}

// OverridePassword sets the password of a user whose registration is still
// pending, without proving the previous one.
func (s *CredentialService) OverridePassword(ctx context.Context, id domain.UserID, newPwd string) error {
	u, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Registered() {
		return ErrRegistered
	}
	return s.setPassword(ctx, s.Store, u, newPwd)
}

// ResetPassword sets the password unconditionally. Callers must have
// authorized the change, for example with a password reset token.
func (s *CredentialService) ResetPassword(ctx context.Context, st store.Store, id domain.UserID, newPwd string) error {
	u, err := st.Users().GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.setPassword(ctx, st, u, newPwd)
}

func (s *CredentialService) setPassword(ctx context.Context, st store.Store, u domain.User, pwd string) error {
	// The salt is kept; the digest already changes with the password.
	if err := st.Users().UpdatePasswordHash(ctx, u.ID, cryptox.DigestPassword(pwd, u.Salt)); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("password changed", slog.Int64("user_id", int64(u.ID)))
	return nil
}

// ChangeEmail checks password and records a pending email change. The
// address is applied by ConfirmEmail.
func (s *CredentialService) ChangeEmail(
	ctx context.Context,
	id domain.UserID,
	password, email string,
) (domain.User, uuid.UUID, error) {
	u, err := s.getUser(ctx, id)
	if err != nil {
		return domain.User{}, uuid.Nil, err
	}
	if !u.Registered() || !s.VerifyPassword(u, password) {
		return domain.User{}, uuid.Nil, ErrInvalidCredentials
	}

	token := uuid.New()
	err = s.Store.EmailChanges().CreateEmailChange(ctx, domain.EmailChange{
		UserID:   u.ID,
		Email:    strings.TrimSpace(email),
		Token:    token,
		IssuedAt: s.now(),
	})
	if err != nil {
		return domain.User{}, uuid.Nil, err
	}
	return u, token, nil
}

// ConfirmEmail applies the pending email change identified by name and
// token.
func (s *CredentialService) ConfirmEmail(ctx context.Context, name string, token uuid.UUID) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserByName(ctx, NormalizeName(name))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		ec, err := tx.EmailChanges().GetEmailChange(ctx, u.ID, token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if w := s.Config.EmailTokenExpiration; w > 0 && IsTokenExpired(w, ec.IssuedAt, s.now()) {
			return ErrTokenExpired
		}

		if err := tx.Users().UpdateEmail(ctx, u.ID, ec.Email); err != nil {
			return err
		}
		return tx.EmailChanges().DeleteEmailChange(ctx, u.ID, token)
	})
}

// ConfirmRegistration completes a pending registration when key matches.
func (s *CredentialService) ConfirmRegistration(ctx context.Context, name, key string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByName(ctx, NormalizeName(name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	if u.Registered() {
		return domain.User{}, ErrRegistered
	}
	if *u.RegistrationKey != key {
		return domain.User{}, ErrNotFound
	}

	if err := s.Store.Users().ClearRegistrationKey(ctx, u.ID); err != nil {
		return domain.User{}, err
	}
	u.RegistrationKey = nil
	return u, nil
}

// UpdateFields is the admin update of the login relevant fields of a user.
func (s *CredentialService) UpdateFields(ctx context.Context, patch domain.User) (domain.User, error) {
	u, err := s.getUser(ctx, patch.ID)
	if err != nil {
		return domain.User{}, err
	}

	u.Name = NormalizeName(patch.Name)
	u.Email = strings.TrimSpace(patch.Email)
	u.Admin = patch.Admin
	u.Active = patch.Active
	u.RemoteURL = patch.RemoteURL

	if err := s.Store.Users().UpdateUser(ctx, u); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			return domain.User{}, ErrConflict
		case errors.Is(err, store.ErrNotFound):
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

// SetRemote binds u to a remote instance, or unbinds it when remoteURL is
// nil.
func (s *CredentialService) SetRemote(ctx context.Context, id domain.UserID, remoteURL, cookie *string) error {
	err := s.Store.Users().UpdateRemote(ctx, id, remoteURL, cookie)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *CredentialService) getUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}
