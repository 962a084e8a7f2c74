package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return mapErr(t.tx.Commit()) }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits or rolls back, the db stays open

// Ping is a no-op, the connection is already held by the transaction.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Querier() store.Querier               { return t.tx }
func (t *txStore) Users() store.Users                   { return &usersRepo{q: t.tx} }
func (t *txStore) Tokens() store.Tokens                 { return &tokensRepo{q: t.tx} }
func (t *txStore) EmailChanges() store.EmailChanges     { return &emailChangesRepo{q: t.tx} }
func (t *txStore) PasswordResets() store.PasswordResets { return &passwordResetsRepo{q: t.tx} }
func (t *txStore) Invites() store.Invites               { return &invitesRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx is opened
