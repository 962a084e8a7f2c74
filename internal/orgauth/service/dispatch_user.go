package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/cryptox"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
	"github.com/google/uuid"
)

// HandleUser answers one end user request.
func (d *Dispatcher) HandleUser(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	req authsdk.UserRequest,
) (authsdk.UserResponse, error) {
	slogx.FromContext(ctx).Debug("user request", slog.String("what", string(req.What)))

	switch req.What {
	case authsdk.UrqRegister:
		var rd authsdk.RegistrationData
		if err := req.DecodeData(&rd); err != nil {
			return authsdk.UserResponse{}, malformed(string(req.What), err)
		}
		return d.register(ctx, carrier, hooks, rd)

	case authsdk.UrqLogin:
		var l authsdk.Login
		if err := req.DecodeData(&l); err != nil {
			return authsdk.UserResponse{}, malformed(string(req.What), err)
		}
		return d.handleLogin(ctx, carrier, hooks, l)

	case authsdk.UrqLogout:
		return d.logout(ctx, carrier), nil

	case authsdk.UrqResetPassword:
		var rp authsdk.ResetPassword
		if err := req.DecodeData(&rp); err != nil {
			return authsdk.UserResponse{}, malformed(string(req.What), err)
		}
		return d.resetPassword(ctx, rp)

	case authsdk.UrqSetPassword:
		var sp authsdk.SetPassword
		if err := req.DecodeData(&sp); err != nil {
			return authsdk.UserResponse{}, malformed(string(req.What), err)
		}
		return d.setPassword(ctx, sp)

	case authsdk.UrqReadInvite:
		var token uuid.UUID
		if err := req.DecodeData(&token); err != nil {
			return authsdk.UserResponse{}, malformed(string(req.What), err)
		}
		inv, err := d.Pending.ReadInvite(ctx, token)
		if errors.Is(err, ErrNotFound) {
			return authsdk.UserResponse{What: authsdk.UrpNotFound}, nil
		} else if err != nil {
			return authsdk.UserResponse{}, err
		}
		return authsdk.UserResponse{What: authsdk.UrpInvite, Data: d.userInvite(inv)}, nil

	case authsdk.UrqRSVP:
		var r authsdk.RSVP
		if err := req.DecodeData(&r); err != nil {
			return authsdk.UserResponse{}, malformed(string(req.What), err)
		}
		return d.rsvp(ctx, carrier, hooks, r)

	case authsdk.UrqAuthedRequest:
		var ar authsdk.AuthedRequest
		if err := req.DecodeData(&ar); err != nil {
			return authsdk.UserResponse{}, malformed(string(req.What), err)
		}
		return d.handleAuthed(ctx, carrier, hooks, ar)
	}

	return authsdk.UserResponse{}, malformed("user request", fmt.Errorf("unknown variant %q", req.What))
}

func (d *Dispatcher) register(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	rd authsdk.RegistrationData,
) (authsdk.UserResponse, error) {
	// 1. Preconditions
	if !d.Config.OpenRegistration {
		return authsdk.UserResponse{What: authsdk.UrpRegistrationClosed}, nil
	}
	name := NormalizeName(rd.UID)
	if name == "" {
		return authsdk.UserResponse{What: authsdk.UrpBlankUserName}, nil
	}
	if blank(rd.Pwd) {
		return authsdk.UserResponse{What: authsdk.UrpBlankPassword}, nil
	}

	// 2. A pending registration may be redone with new credentials
	existing, err := d.Store.Users().GetUserByName(ctx, name)
	switch {
	case err == nil && existing.Registered():
		return authsdk.UserResponse{What: authsdk.UrpUserExists}, nil
	case err == nil:
		return d.reregister(ctx, carrier, hooks, existing, rd)
	case !errors.Is(err, store.ErrNotFound):
		return authsdk.UserResponse{}, err
	}

	if rd.RemoteURL != nil && d.Config.RemoteRegistration {
		return d.registerRemote(ctx, carrier, hooks, name, rd)
	}

	// 3. Create the user, pending confirmation when emails are on
	var key *string
	if d.Config.SendEmails {
		k, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return authsdk.UserResponse{}, err
		}
		key = &k
	}

	payload, err := registrationPayload(rd)
	if err != nil {
		return authsdk.UserResponse{}, err
	}

	var u domain.User
	err = d.Store.WithTx(ctx, func(tx store.Tx) error {
		id, err := d.Credentials.CreateUser(ctx, tx, hooks, domain.NewUser{
			Name:            name,
			Password:        rd.Pwd,
			Email:           rd.Email,
			RegistrationKey: key,
			Data:            payload,
		})
		if err != nil {
			return err
		}
		u, err = tx.Users().GetUserByID(ctx, id)
		return err
	})
	if errors.Is(err, ErrConflict) {
		return authsdk.UserResponse{What: authsdk.UrpUserExists}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}

	d.notifyAdmin(ctx, MailAdminRegistration, u.Name)

	// 4. Either confirm by email or log straight in
	if key == nil {
		return d.login(ctx, carrier, hooks, u)
	}
	return d.sendRegistration(ctx, u, *key), nil
}

func (d *Dispatcher) reregister(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	u domain.User,
	rd authsdk.RegistrationData,
) (authsdk.UserResponse, error) {
	if !u.Active {
		return authsdk.UserResponse{What: authsdk.UrpAccountDeactivated}, nil
	}
	if err := d.Credentials.OverridePassword(ctx, u.ID, rd.Pwd); err != nil {
		return authsdk.UserResponse{}, err
	}
	email := strings.TrimSpace(rd.Email)
	if err := d.Store.Users().UpdateEmail(ctx, u.ID, email); err != nil {
		return authsdk.UserResponse{}, err
	}
	u.Email = email

	if d.Config.SendEmails {
		return d.sendRegistration(ctx, u, *u.RegistrationKey), nil
	}

	if err := d.Store.Users().ClearRegistrationKey(ctx, u.ID); err != nil {
		return authsdk.UserResponse{}, err
	}
	u.RegistrationKey = nil
	return d.login(ctx, carrier, hooks, u)
}

func (d *Dispatcher) sendRegistration(ctx context.Context, u domain.User, key string) authsdk.UserResponse {
	err := d.Mailer.Send(ctx, Message{
		Kind: MailRegistration,
		To:   u.Email,
		Name: u.Name,
		Link: d.Pending.RegistrationLink(u.Name, key),
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to send registration email",
			slog.Int64("user_id", int64(u.ID)),
			slog.Any("error", err),
		)
		return serverError("failed to send registration email")
	}
	return authsdk.UserResponse{What: authsdk.UrpRegistrationSent}
}

// registerRemote creates a local account bound to an existing account on a
// peer. The peer vouches for the password and supplies the uuid.
func (d *Dispatcher) registerRemote(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	name string,
	rd authsdk.RegistrationData,
) (authsdk.UserResponse, error) {
	ld, cookie, err := d.remoteLogin(ctx, *rd.RemoteURL, name, rd.Pwd)
	if err != nil {
		return authsdk.UserResponse{}, err
	}
	if ld == nil {
		return authsdk.UserResponse{What: authsdk.UrpRemoteRegistrationFail}, nil
	}

	email := rd.Email
	if email == "" {
		email = ld.Email
	}

	payload, err := registrationPayload(rd)
	if err != nil {
		return authsdk.UserResponse{}, err
	}

	var u domain.User
	err = d.Store.WithTx(ctx, func(tx store.Tx) error {
		id, err := d.Credentials.CreateUser(ctx, tx, hooks, domain.NewUser{
			Name:      name,
			Password:  rd.Pwd,
			Email:     email,
			UUID:      &ld.UUID,
			RemoteURL: rd.RemoteURL,
			Cookie:    &cookie,
			Data:      payload,
		})
		if err != nil {
			return err
		}
		u, err = tx.Users().GetUserByID(ctx, id)
		return err
	})
	if errors.Is(err, ErrConflict) {
		return authsdk.UserResponse{What: authsdk.UrpUserExists}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}

	d.notifyAdmin(ctx, MailAdminRegistration, u.Name)
	return d.login(ctx, carrier, hooks, u)
}

func (d *Dispatcher) handleLogin(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	login authsdk.Login,
) (authsdk.UserResponse, error) {
	l := slogx.FromContext(ctx)

	u, err := d.Store.Users().GetUserByName(ctx, NormalizeName(login.UID))
	if errors.Is(err, store.ErrNotFound) {
		return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}

	if !u.Registered() {
		return authsdk.UserResponse{What: authsdk.UrpUnregisteredUser}, nil
	}
	if !d.Credentials.VerifyPassword(u, login.Pwd) {
		l.Info("login failed", slog.Int64("user_id", int64(u.ID)))
		return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
	}
	if !u.Active {
		return authsdk.UserResponse{What: authsdk.UrpAccountDeactivated}, nil
	}

	return d.login(ctx, carrier, hooks, u)
}

// logout revokes the carrier's session and forgets it. It always succeeds;
// a failed revoke is logged and the rows are left to the expiry sweep.
func (d *Dispatcher) logout(ctx context.Context, carrier TokenCarrier) authsdk.UserResponse {
	if tok := carrier.Get(); tok != nil {
		if err := d.Ledger.Revoke(ctx, *tok); err != nil {
			slogx.FromContext(ctx).Warn("failed to revoke token on logout", slog.Any("error", err))
		}
	}
	carrier.Clear()
	return authsdk.UserResponse{What: authsdk.UrpLoggedOut}
}

func (d *Dispatcher) resetPassword(ctx context.Context, rp authsdk.ResetPassword) (authsdk.UserResponse, error) {
	u, err := d.Store.Users().GetUserByName(ctx, NormalizeName(rp.UID))
	if errors.Is(err, store.ErrNotFound) {
		return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}
	if !u.Registered() {
		return authsdk.UserResponse{What: authsdk.UrpUnregisteredUser}, nil
	}

	token, err := d.Pending.CreatePasswordReset(ctx, u.ID)
	if err != nil {
		return authsdk.UserResponse{}, err
	}

	if err := d.sendReset(ctx, u, token); err != nil {
		return serverError("failed to send reset email"), nil
	}
	return authsdk.UserResponse{What: authsdk.UrpResetPasswordAck}, nil
}

func (d *Dispatcher) setPassword(ctx context.Context, sp authsdk.SetPassword) (authsdk.UserResponse, error) {
	if blank(sp.NewPwd) {
		return authsdk.UserResponse{What: authsdk.UrpBlankPassword}, nil
	}

	u, err := d.Store.Users().GetUserByName(ctx, NormalizeName(sp.UID))
	if errors.Is(err, store.ErrNotFound) {
		return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}
	if !u.Registered() {
		return authsdk.UserResponse{What: authsdk.UrpUnregisteredUser}, nil
	}

	switch err := d.Pending.CheckPasswordReset(ctx, u.ID, sp.ResetKey); {
	case errors.Is(err, ErrNotFound):
		return authsdk.UserResponse{What: authsdk.UrpNotFound}, nil
	case errors.Is(err, ErrTokenExpired):
		return serverError("password reset failed"), nil
	case err != nil:
		return authsdk.UserResponse{}, err
	}

	err = d.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := d.Credentials.ResetPassword(ctx, tx, u.ID, sp.NewPwd); err != nil {
			return err
		}
		return d.Pending.ConsumePasswordReset(ctx, tx, u.ID, sp.ResetKey)
	})
	if err != nil {
		return authsdk.UserResponse{}, err
	}
	return authsdk.UserResponse{What: authsdk.UrpSetPasswordAck}, nil
}

func (d *Dispatcher) rsvp(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	r authsdk.RSVP,
) (authsdk.UserResponse, error) {
	l := slogx.FromContext(ctx)

	inv, err := d.Pending.ReadInvite(ctx, r.Invite)
	if errors.Is(err, ErrNotFound) {
		return authsdk.UserResponse{What: authsdk.UrpNotFound}, nil
	} else if err != nil {
		return authsdk.UserResponse{}, err
	}

	name := NormalizeName(r.UID)
	if name == "" {
		return authsdk.UserResponse{What: authsdk.UrpBlankUserName}, nil
	}
	if blank(r.Pwd) {
		return authsdk.UserResponse{What: authsdk.UrpBlankPassword}, nil
	}

	existing, err := d.Store.Users().GetUserByName(ctx, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return authsdk.UserResponse{}, err
	}

	var u domain.User
	if err == nil {
		// Existing account: the invite is claimed by proving the password.
		if !d.Credentials.VerifyPassword(existing, r.Pwd) {
			return authsdk.UserResponse{What: authsdk.UrpInvalidUserOrPwd}, nil
		}
		if !existing.Active {
			return authsdk.UserResponse{What: authsdk.UrpAccountDeactivated}, nil
		}

		err = d.Store.WithTx(ctx, func(tx store.Tx) error {
			if !existing.Registered() {
				if err := tx.Users().ClearRegistrationKey(ctx, existing.ID); err != nil {
					return err
				}
			}
			return d.Pending.RedeemInvite(ctx, tx, inv.Token)
		})
		existing.RegistrationKey = nil
		u = existing
	} else {
		email := strings.TrimSpace(r.Email)
		if email == "" && inv.Email != nil {
			email = *inv.Email
		}

		err = d.Store.WithTx(ctx, func(tx store.Tx) error {
			id, err := d.Credentials.CreateUser(ctx, tx, hooks, domain.NewUser{
				Name:      name,
				Password:  r.Pwd,
				Email:     email,
				CreatorID: &inv.CreatorID,
				Data:      inv.Data,
			})
			if err != nil {
				return err
			}
			if err := d.Pending.RedeemInvite(ctx, tx, inv.Token); err != nil {
				return err
			}
			u, err = tx.Users().GetUserByID(ctx, id)
			return err
		})
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return authsdk.UserResponse{What: authsdk.UrpNotFound}, nil
	case errors.Is(err, ErrConflict):
		return authsdk.UserResponse{What: authsdk.UrpUserExists}, nil
	case err != nil:
		return authsdk.UserResponse{}, err
	}

	l.Info("invite accepted",
		slog.Int64("user_id", int64(u.ID)),
		slog.Int64("creator_id", int64(inv.CreatorID)),
	)
	d.notifyAdmin(ctx, MailAdminRSVP, u.Name)
	return d.login(ctx, carrier, hooks, u)
}
