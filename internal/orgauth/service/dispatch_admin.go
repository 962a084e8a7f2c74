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

// errDeleteRefused rolls back an admin delete the veto hook refused or whose
// target does not exist.
var errDeleteRefused = errors.New("delete refused")

// HandleAdmin answers one admin request. The caller must hold a valid token
// of an active admin.
func (d *Dispatcher) HandleAdmin(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	req authsdk.AdminRequest,
) (authsdk.AdminResponse, error) {
	l := slogx.FromContext(ctx)

	// 1. Gate on an admin session
	tok := carrier.Get()
	if tok == nil {
		return authsdk.AdminResponse{What: authsdk.ArpNotLoggedIn}, nil
	}
	admin, err := d.Ledger.ResolveForRequest(ctx, *tok)
	switch {
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		return authsdk.AdminResponse{What: authsdk.ArpNotLoggedIn}, nil
	case errors.Is(err, ErrAccountDeactivated):
		return authsdk.AdminResponse{What: authsdk.ArpAccessDenied}, nil
	case err != nil:
		return authsdk.AdminResponse{}, err
	}
	if !admin.Admin {
		l.Warn("admin request from non-admin", slog.Int64("user_id", int64(admin.ID)))
		return authsdk.AdminResponse{What: authsdk.ArpAccessDenied}, nil
	}
	ctx = slogx.WithUser(ctx, int64(admin.ID))

	// 2. Dispatch
	switch req.What {
	case authsdk.AdrGetUsers:
		return d.getUsers(ctx, hooks)

	case authsdk.AdrDeleteUser:
		var id int64
		if err := req.DecodeData(&id); errors.Is(err, authsdk.ErrMissingData) {
			return authsdk.AdminResponse{What: authsdk.ArpNoData}, nil
		} else if err != nil {
			return authsdk.AdminResponse{}, malformed(string(req.What), err)
		}
		return d.deleteUser(ctx, hooks, domain.UserID(id))

	case authsdk.AdrUpdateUser:
		var ld authsdk.LoginData
		if err := req.DecodeData(&ld); errors.Is(err, authsdk.ErrMissingData) {
			return authsdk.AdminResponse{What: authsdk.ArpNoData}, nil
		} else if err != nil {
			return authsdk.AdminResponse{}, malformed(string(req.What), err)
		}
		return d.updateUser(ctx, hooks, ld)

	case authsdk.AdrGetInvite:
		var gi authsdk.GetInvite
		if err := req.DecodeData(&gi); errors.Is(err, authsdk.ErrMissingData) {
			return authsdk.AdminResponse{What: authsdk.ArpNoData}, nil
		} else if err != nil {
			return authsdk.AdminResponse{}, malformed(string(req.What), err)
		}
		inv, err := d.Pending.CreateInvite(ctx, admin.ID, gi.Email, gi.Data)
		if err != nil {
			return authsdk.AdminResponse{}, err
		}
		return authsdk.AdminResponse{What: authsdk.ArpUserInvite, Data: d.userInvite(inv)}, nil

	case authsdk.AdrGetPwdReset:
		var id int64
		if err := req.DecodeData(&id); errors.Is(err, authsdk.ErrMissingData) {
			return authsdk.AdminResponse{What: authsdk.ArpNoData}, nil
		} else if err != nil {
			return authsdk.AdminResponse{}, malformed(string(req.What), err)
		}
		return d.getPwdReset(ctx, domain.UserID(id))
	}

	return authsdk.AdminResponse{}, malformed("admin request", fmt.Errorf("unknown variant %q", req.What))
}

func (d *Dispatcher) getUsers(ctx context.Context, hooks Hooks) (authsdk.AdminResponse, error) {
	users, err := d.Store.Users().ListUsers(ctx)
	if err != nil {
		return authsdk.AdminResponse{}, err
	}

	out := make([]authsdk.LoginData, 0, len(users))
	for _, u := range users {
		ld, err := d.loginData(ctx, d.Store.Querier(), hooks, u)
		if err != nil {
			return authsdk.AdminResponse{}, err
		}
		out = append(out, ld)
	}
	return authsdk.AdminResponse{What: authsdk.ArpUsers, Data: out}, nil
}

// deleteUser removes a user and everything hanging off it in one
// transaction. The veto hook runs first, inside the transaction, and may
// refuse or clean up host rows.
func (d *Dispatcher) deleteUser(ctx context.Context, hooks Hooks, id domain.UserID) (authsdk.AdminResponse, error) {
	l := slogx.FromContext(ctx)

	err := d.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetUserByID(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errDeleteRefused
			}
			return err
		}

		ok, err := hooks.beforeDelete(ctx, tx.Querier(), id)
		if err != nil {
			return fmt.Errorf("delete veto hook: %w", err)
		}
		if !ok {
			l.Info("user delete vetoed", slog.Int64("target_id", int64(id)))
			return errDeleteRefused
		}

		if err := d.Ledger.RevokeAll(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.EmailChanges().DeleteUserEmailChanges(ctx, id); err != nil {
			return err
		}
		if err := tx.PasswordResets().DeleteUserPasswordResets(ctx, id); err != nil {
			return err
		}
		if err := tx.Invites().DeleteInvitesByCreator(ctx, id); err != nil {
			return err
		}
		return tx.Users().DeleteUser(ctx, id)
	})
	if errors.Is(err, errDeleteRefused) {
		return authsdk.AdminResponse{What: authsdk.ArpUserNotDeleted, Data: int64(id)}, nil
	} else if err != nil {
		return authsdk.AdminResponse{}, err
	}

	l.Info("user deleted", slog.Int64("target_id", int64(id)))
	return authsdk.AdminResponse{What: authsdk.ArpUserDeleted, Data: int64(id)}, nil
}

func (d *Dispatcher) updateUser(ctx context.Context, hooks Hooks, ld authsdk.LoginData) (authsdk.AdminResponse, error) {
	if NormalizeName(ld.Name) == "" {
		return authsdk.AdminResponse{What: authsdk.ArpNoData}, nil
	}

	u, err := d.Credentials.UpdateFields(ctx, domain.User{
		ID:        domain.UserID(ld.UserID),
		Name:      ld.Name,
		Email:     ld.Email,
		Admin:     ld.Admin,
		Active:    ld.Active,
		RemoteURL: ld.RemoteURL,
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return authsdk.AdminResponse{What: authsdk.ArpNoUserID}, nil
	case errors.Is(err, ErrConflict):
		return authsdk.AdminResponse{What: authsdk.ArpUserExists}, nil
	case err != nil:
		return authsdk.AdminResponse{}, err
	}

	out, err := d.loginData(ctx, d.Store.Querier(), hooks, u)
	if err != nil {
		return authsdk.AdminResponse{}, err
	}
	return authsdk.AdminResponse{What: authsdk.ArpUserUpdated, Data: out}, nil
}

func (d *Dispatcher) getPwdReset(ctx context.Context, id domain.UserID) (authsdk.AdminResponse, error) {
	u, err := d.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return authsdk.AdminResponse{What: authsdk.ArpNoUserID}, nil
	} else if err != nil {
		return authsdk.AdminResponse{}, err
	}

	token, err := d.Pending.CreatePasswordReset(ctx, u.ID)
	if err != nil {
		return authsdk.AdminResponse{}, err
	}

	// The admin gets the link either way and can pass it on if mail failed.
	_ = d.sendReset(ctx, u, token)

	return authsdk.AdminResponse{What: authsdk.ArpPwdReset, Data: authsdk.PwdReset{
		UserID: int64(u.ID),
		URL:    d.Pending.ResetLink(u.Name, token),
	}}, nil
}
