package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrBusy is returned when the database reported SQLITE_BUSY or
	// SQLITE_LOCKED. The operation may succeed if retried.
	ErrBusy = errors.New("store: database busy")
)

// Querier is the subset of *sql.DB and *sql.Tx handed to host hooks so they can
// keep their own per-user tables in the same unit of work as the engine.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the root data access interface. It exposes sub-repositories per
// table, the same way for the root handle and for a transaction, so callers
// can't accidentally start a transaction inside a transaction.
type Store interface {
	Users() Users
	Tokens() Tokens
	EmailChanges() EmailChanges
	PasswordResets() PasswordResets
	Invites() Invites

	// Querier exposes the raw handle (db or tx) for host extension hooks.
	Querier() Querier

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. It rolls back when fn returns
	// an error and commits otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts u and returns its id. A name or uuid collision
	// returns ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) (domain.UserID, error)

	GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error)

	// GetUserByName expects an already lowercased name.
	GetUserByName(ctx context.Context, name string) (domain.User, error)

	GetUserByUUID(ctx context.Context, id uuid.UUID) (domain.User, error)

	// ListUsers returns every user ordered by id.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// UpdateUser overwrites every mutable column of u.
	UpdateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, id domain.UserID, hash string) error
	UpdateEmail(ctx context.Context, id domain.UserID, email string) error
	ClearRegistrationKey(ctx context.Context, id domain.UserID) error
	UpdateRemote(ctx context.Context, id domain.UserID, remoteURL, cookie *string) error

	DeleteUser(ctx context.Context, id domain.UserID) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Tokens interface {
	CreateToken(ctx context.Context, t domain.Token) error

	GetToken(ctx context.Context, token uuid.UUID) (domain.Token, error)

	// GetUserByToken joins the token to its owner.
	GetUserByToken(ctx context.Context, token uuid.UUID) (domain.User, domain.Token, error)

	// MarkRegen sets regendate on token. It reports whether a row was updated.
	MarkRegen(ctx context.Context, token uuid.UUID, at time.Time) (bool, error)

	ClearPrevToken(ctx context.Context, token uuid.UUID) error

	// DeleteChainLink deletes token and every row that names it as prevtoken,
	// except keep.
	DeleteChainLink(ctx context.Context, token, keep uuid.UUID) error

	DeleteToken(ctx context.Context, token uuid.UUID) error
	DeleteUserTokens(ctx context.Context, id domain.UserID) error

	// DeleteExpiredTokens removes tokens issued before cutoff, except those
	// of the skipped classes.
	DeleteExpiredTokens(ctx context.Context, cutoff time.Time, skipClasses ...string) (int64, error)

	// DeleteExpiredTokensByClass is DeleteExpiredTokens restricted to a class.
	DeleteExpiredTokensByClass(ctx context.Context, class string, cutoff time.Time) (int64, error)
}

type EmailChanges interface {
	CreateEmailChange(ctx context.Context, c domain.EmailChange) error
	GetEmailChange(ctx context.Context, id domain.UserID, token uuid.UUID) (domain.EmailChange, error)
	DeleteEmailChange(ctx context.Context, id domain.UserID, token uuid.UUID) error
	DeleteUserEmailChanges(ctx context.Context, id domain.UserID) error
	DeleteExpiredEmailChanges(ctx context.Context, cutoff time.Time) (int64, error)
}

type PasswordResets interface {
	CreatePasswordReset(ctx context.Context, r domain.PasswordReset) error
	GetPasswordReset(ctx context.Context, id domain.UserID, token uuid.UUID) (domain.PasswordReset, error)
	DeletePasswordReset(ctx context.Context, id domain.UserID, token uuid.UUID) error
	DeleteUserPasswordResets(ctx context.Context, id domain.UserID) error
	DeleteExpiredPasswordResets(ctx context.Context, cutoff time.Time) (int64, error)
}

type Invites interface {
	CreateInvite(ctx context.Context, inv domain.Invite) error
	GetInvite(ctx context.Context, token uuid.UUID) (domain.Invite, error)

	// DeleteInvite reports whether the invite existed.
	DeleteInvite(ctx context.Context, token uuid.UUID) (bool, error)

	DeleteInvitesByCreator(ctx context.Context, id domain.UserID) error
	DeleteExpiredInvites(ctx context.Context, cutoff time.Time) (int64, error)
}
