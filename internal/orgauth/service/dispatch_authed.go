package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
)

// handleAuthed resolves the caller and runs an authenticated sub-request.
func (d *Dispatcher) handleAuthed(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	ar authsdk.AuthedRequest,
) (authsdk.UserResponse, error) {
	tok := carrier.Get()
	if tok == nil {
		return authsdk.UserResponse{What: authsdk.UrpNotLoggedIn}, nil
	}

	u, err := d.Ledger.ResolveForRequest(ctx, *tok)
	switch {
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		return authsdk.UserResponse{What: authsdk.UrpNotLoggedIn}, nil
	case errors.Is(err, ErrAccountDeactivated):
		return authsdk.UserResponse{What: authsdk.UrpAccountDeactivated}, nil
	case err != nil:
		return authsdk.UserResponse{}, err
	}
	ctx = slogx.WithUser(ctx, int64(u.ID))

	switch ar.What {
	case authsdk.AurChangePassword:
		var cp authsdk.ChangePassword
		if err := ar.DecodeData(&cp); err != nil {
			return authsdk.UserResponse{}, malformed(string(ar.What), err)
		}
		if blank(cp.NewPwd) {
			return authsdk.UserResponse{What: authsdk.UrpBlankPassword}, nil
		}
		err := d.Credentials.ChangePassword(ctx, u.ID, cp.OldPwd, cp.NewPwd)
		if errors.Is(err, ErrInvalidCredentials) {
			return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
		} else if err != nil {
			return authsdk.UserResponse{}, err
		}
		return authsdk.UserResponse{What: authsdk.UrpChangedPassword}, nil

	case authsdk.AurChangeEmail:
		var ce authsdk.ChangeEmail
		if err := ar.DecodeData(&ce); err != nil {
			return authsdk.UserResponse{}, malformed(string(ar.What), err)
		}
		return d.changeEmail(ctx, u, ce)

	case authsdk.AurChangeRemoteURL:
		var cr authsdk.ChangeRemoteURL
		if err := ar.DecodeData(&cr); err != nil {
			return authsdk.UserResponse{}, malformed(string(ar.What), err)
		}
		return d.changeRemoteURL(ctx, hooks, u, cr)

	case authsdk.AurReadRemoteUser:
		var id int64
		if err := ar.DecodeData(&id); err != nil {
			return authsdk.UserResponse{}, malformed(string(ar.What), err)
		}
		return d.readRemoteUser(ctx, hooks, domain.UserID(id))

	case authsdk.AurGetInvite:
		if !d.Config.NonAdminInvite && !u.Admin {
			return authsdk.UserResponse{What: authsdk.UrpInvitesDisabled}, nil
		}
		var gi authsdk.GetInvite
		if err := ar.DecodeData(&gi); errors.Is(err, authsdk.ErrMissingData) {
			return authsdk.UserResponse{What: authsdk.UrpNoData}, nil
		} else if err != nil {
			return authsdk.UserResponse{}, malformed(string(ar.What), err)
		}
		inv, err := d.Pending.CreateInvite(ctx, u.ID, gi.Email, gi.Data)
		if err != nil {
			return authsdk.UserResponse{}, err
		}
		return authsdk.UserResponse{What: authsdk.UrpInvite, Data: d.userInvite(inv)}, nil
	}

	return authsdk.UserResponse{}, malformed("authed request", fmt.Errorf("unknown variant %q", ar.What))
}

func (d *Dispatcher) changeEmail(ctx context.Context, u domain.User, ce authsdk.ChangeEmail) (authsdk.UserResponse, error) {
	u, token, err := d.Credentials.ChangeEmail(ctx, u.ID, ce.Pwd, ce.Email)
	if errors.Is(err, ErrInvalidCredentials) {
		return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}

	if !d.Config.SendEmails {
		return authsdk.UserResponse{What: authsdk.UrpChangedEmail}, nil
	}

	err = d.Mailer.Send(ctx, Message{
		Kind: MailEmailChange,
		To:   ce.Email,
		Name: u.Name,
		Link: d.Pending.EmailChangeLink(u.Name, token),
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to send email change confirmation", slog.Any("error", err))
		return serverError("failed to send email change confirmation"), nil
	}
	return authsdk.UserResponse{What: authsdk.UrpChangedEmail}, nil
}

// changeRemoteURL binds the caller to the same identity on another instance.
// The peer must accept the caller's current password and report the same
// uuid. A nil url unbinds the account.
func (d *Dispatcher) changeRemoteURL(
	ctx context.Context,
	hooks Hooks,
	u domain.User,
	cr authsdk.ChangeRemoteURL,
) (authsdk.UserResponse, error) {
	if !u.Registered() || !d.Credentials.VerifyPassword(u, cr.Pwd) {
		return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
	}

	var cookie *string
	if cr.RemoteURL != nil {
		ld, c, err := d.remoteLogin(ctx, *cr.RemoteURL, u.Name, cr.Pwd)
		if err != nil {
			return authsdk.UserResponse{}, err
		}
		if ld == nil {
			return authsdk.UserResponse{What: authsdk.UrpRemoteRegistrationFail}, nil
		}
		if ld.UUID != u.UUID {
			return authsdk.UserResponse{What: authsdk.UrpInvalidUserUUID}, nil
		}
		cookie = &c
	}

	if err := d.Credentials.SetRemote(ctx, u.ID, cr.RemoteURL, cookie); err != nil {
		return authsdk.UserResponse{}, err
	}
	u.RemoteURL, u.Cookie = cr.RemoteURL, cookie

	ld, err := d.loginData(ctx, d.Store.Querier(), hooks, u)
	if err != nil {
		return authsdk.UserResponse{}, err
	}
	return authsdk.UserResponse{What: authsdk.UrpChangedRemoteURL, Data: ld}, nil
}

// readRemoteUser returns the reduced view of another user.
func (d *Dispatcher) readRemoteUser(ctx context.Context, hooks Hooks, id domain.UserID) (authsdk.UserResponse, error) {
	u, err := d.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return authsdk.UserResponse{What: authsdk.UrpInvalidUserID}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}

	data, err := hooks.loginData(ctx, d.Store.Querier(), u.ID)
	if err != nil {
		return authsdk.UserResponse{}, fmt.Errorf("login data hook: %w", err)
	}
	return authsdk.UserResponse{What: authsdk.UrpRemoteUser, Data: authsdk.PhantomUser{
		ID:     int64(u.ID),
		UUID:   u.UUID,
		Name:   u.Name,
		Active: u.Active,
		Data:   data,
	}}, nil
}
