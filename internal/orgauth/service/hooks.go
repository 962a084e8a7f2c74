package service

import (
	"context"
	"encoding/json"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
)

// CreatedUser describes a freshly inserted user to the host.
type CreatedUser struct {
	ID domain.UserID

	// Creator is the user whose invite was accepted, nil otherwise.
	Creator *domain.UserID

	// RemoteURL is set when the account is bound to a peer instance.
	RemoteURL *string

	// Data is the registration payload or the invite data.
	Data []byte
}

// UserCreatedHook lets the host attach its own state to a new user. It runs
// inside the transaction that inserted the user; returning an error rolls
// the user back.
type UserCreatedHook interface {
	UserCreated(ctx context.Context, q store.Querier, u CreatedUser) error
}

// LoginDataHook returns an opaque blob attached to a user's login data.
type LoginDataHook interface {
	LoginData(ctx context.Context, q store.Querier, id domain.UserID) (json.RawMessage, error)
}

// DeleteVetoHook runs inside the admin delete transaction before any rows
// are removed. Returning false aborts the delete.
type DeleteVetoHook interface {
	BeforeDelete(ctx context.Context, q store.Querier, id domain.UserID) (bool, error)
}

type UserCreatedFunc func(ctx context.Context, q store.Querier, u CreatedUser) error

func (f UserCreatedFunc) UserCreated(ctx context.Context, q store.Querier, u CreatedUser) error {
	return f(ctx, q, u)
}

type LoginDataFunc func(ctx context.Context, q store.Querier, id domain.UserID) (json.RawMessage, error)

func (f LoginDataFunc) LoginData(ctx context.Context, q store.Querier, id domain.UserID) (json.RawMessage, error) {
	return f(ctx, q, id)
}

type DeleteVetoFunc func(ctx context.Context, q store.Querier, id domain.UserID) (bool, error)

func (f DeleteVetoFunc) BeforeDelete(ctx context.Context, q store.Querier, id domain.UserID) (bool, error) {
	return f(ctx, q, id)
}

// Hooks bundles the host callbacks for one dispatcher call. Nil members
// behave as no-ops and deletes are allowed.
type Hooks struct {
	UserCreated UserCreatedHook
	LoginData   LoginDataHook
	DeleteVeto  DeleteVetoHook
}

func (h Hooks) userCreated(ctx context.Context, q store.Querier, u CreatedUser) error {
	if h.UserCreated == nil {
		return nil
	}
	return h.UserCreated.UserCreated(ctx, q, u)
}

func (h Hooks) loginData(ctx context.Context, q store.Querier, id domain.UserID) (json.RawMessage, error) {
	if h.LoginData == nil {
		return nil, nil
	}
	return h.LoginData.LoginData(ctx, q, id)
}

func (h Hooks) beforeDelete(ctx context.Context, q store.Querier, id domain.UserID) (bool, error) {
	if h.DeleteVeto == nil {
		return true, nil
	}
	return h.DeleteVeto.BeforeDelete(ctx, q, id)
}
