package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/google/uuid"
)

// PendingService manages the short lived records behind password resets and
// invites, and builds the links that carry them.
type PendingService struct {
	Store  store.Store
	Config Config
	Now    func() time.Time
}

func (s *PendingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreatePasswordReset records a reset token for user.
func (s *PendingService) CreatePasswordReset(ctx context.Context, user domain.UserID) (uuid.UUID, error) {
	token := uuid.New()
	err := s.Store.PasswordResets().CreatePasswordReset(ctx, domain.PasswordReset{
		UserID:   user,
		Token:    token,
		IssuedAt: s.now(),
	})
	if err != nil {
		return uuid.Nil, err
	}
	return token, nil
}

// CheckPasswordReset returns ErrNotFound for an unknown reset and
// ErrTokenExpired for a stale one. Neither case touches the row.
func (s *PendingService) CheckPasswordReset(ctx context.Context, user domain.UserID, token uuid.UUID) error {
	r, err := s.Store.PasswordResets().GetPasswordReset(ctx, user, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if w := s.Config.ResetTokenExpiration; w > 0 && IsTokenExpired(w, r.IssuedAt, s.now()) {
		return ErrTokenExpired
	}
	return nil
}

// ConsumePasswordReset deletes a reset once it has been used.
func (s *PendingService) ConsumePasswordReset(ctx context.Context, st store.Store, user domain.UserID, token uuid.UUID) error {
	return st.PasswordResets().DeletePasswordReset(ctx, user, token)
}

// CreateInvite records an invite issued by creator.
func (s *PendingService) CreateInvite(
	ctx context.Context,
	creator domain.UserID,
	email *string,
	data json.RawMessage,
) (domain.Invite, error) {
	inv := domain.Invite{
		Token:     uuid.New(),
		Email:     email,
		CreatorID: creator,
		Data:      data,
		IssuedAt:  s.now(),
	}
	if err := s.Store.Invites().CreateInvite(ctx, inv); err != nil {
		return domain.Invite{}, err
	}
	return inv, nil
}

// ReadInvite returns the invite behind token. Unknown and expired invites
// both return ErrNotFound.
func (s *PendingService) ReadInvite(ctx context.Context, token uuid.UUID) (domain.Invite, error) {
	inv, err := s.Store.Invites().GetInvite(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invite{}, ErrNotFound
		}
		return domain.Invite{}, err
	}
	if w := s.Config.InviteTokenExpiration; w > 0 && IsTokenExpired(w, inv.IssuedAt, s.now()) {
		return domain.Invite{}, ErrNotFound
	}
	return inv, nil
}

// RedeemInvite deletes the invite inside st. It returns ErrNotFound when
// another request already redeemed it.
func (s *PendingService) RedeemInvite(ctx context.Context, st store.Store, token uuid.UUID) error {
	ok, err := st.Invites().DeleteInvite(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *PendingService) InviteLink(token uuid.UUID) string {
	return s.Config.mainSite() + "/invite/" + token.String()
}

func (s *PendingService) ResetLink(name string, token uuid.UUID) string {
	return s.Config.mainSite() + "/reset/" + url.PathEscape(name) + "/" + token.String()
}

func (s *PendingService) RegistrationLink(name, key string) string {
	return s.Config.mainSite() + "/register/" + url.PathEscape(name) + "/" + url.PathEscape(key)
}

func (s *PendingService) EmailChangeLink(name string, token uuid.UUID) string {
	return s.Config.mainSite() + "/newemail/" + url.PathEscape(name) + "/" + token.String()
}
