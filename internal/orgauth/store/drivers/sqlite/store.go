package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

// DSN builds a connection string for the database file at path. The pragmas
// are part of the DSN so every pooled connection gets them, not only the
// first one.
func DSN(path string, busyTimeout time.Duration) string {
	v := url.Values{}
	if busyTimeout > 0 {
		v.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	}
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + v.Encode()
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" is its own database.
	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		dsn: dsn,
	}, nil
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return newTx(tx), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Rollback after a successful commit is a no-op returning ErrTxDone.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Querier() store.Querier               { return s.db }
func (s *Store) Users() store.Users                   { return &usersRepo{q: s.db} }
func (s *Store) Tokens() store.Tokens                 { return &tokensRepo{q: s.db} }
func (s *Store) EmailChanges() store.EmailChanges     { return &emailChangesRepo{q: s.db} }
func (s *Store) PasswordResets() store.PasswordResets { return &passwordResetsRepo{q: s.db} }
func (s *Store) Invites() store.Invites               { return &invitesRepo{q: s.db} }

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func mapNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func mapOptionalMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mapNullUUIDPtr(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: bad uuid %q: %w", ns.String, err)
	}
	return &id, nil
}

func mapOptionalUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

const userColumns = `u.id, u.uuid, u.name, u.hashwd, u.salt, u.email, u.registration_key,
	u.admin, u.active, u.remote_url, u.cookie, u.createdate`

func scanUser(s scanner) (domain.User, error) {
	return scanUserWith(s)
}

// scanUserWith scans userColumns followed by any extra destinations, for
// queries that join the user with another table.
func scanUserWith(s scanner, extra ...any) (domain.User, error) {
	var (
		u                      domain.User
		id, created            int64
		rawUUID                string
		regKey, remote, cookie sql.NullString
	)
	dest := append([]any{&id, &rawUUID, &u.Name, &u.PasswordHash, &u.Salt, &u.Email,
		&regKey, &u.Admin, &u.Active, &remote, &cookie, &created}, extra...)
	if err := s.Scan(dest...); err != nil {
		return domain.User{}, err
	}

	parsed, err := uuid.Parse(rawUUID)
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: bad user uuid %q: %w", rawUUID, err)
	}

	u.ID = domain.UserID(id)
	u.UUID = parsed
	u.RegistrationKey = mapNullStringPtr(regKey)
	u.RemoteURL = mapNullStringPtr(remote)
	u.Cookie = mapNullStringPtr(cookie)
	u.CreatedAt = fromMillis(created)
	return u, nil
}

const tokenColumns = `t.user_id, t.token, t.tokendate, t.regendate, t.prevtoken, t.type`

func scanToken(s scanner) (domain.Token, error) {
	var (
		userID     int64
		rawToken   string
		issued     int64
		regen      sql.NullInt64
		prev, kind sql.NullString
	)
	if err := s.Scan(&userID, &rawToken, &issued, &regen, &prev, &kind); err != nil {
		return domain.Token{}, err
	}
	return buildToken(userID, rawToken, issued, regen, prev, kind)
}

func buildToken(
	userID int64,
	rawToken string,
	issued int64,
	regen sql.NullInt64,
	prev, kind sql.NullString,
) (domain.Token, error) {
	tok, err := uuid.Parse(rawToken)
	if err != nil {
		return domain.Token{}, fmt.Errorf("sqlite: bad token %q: %w", rawToken, err)
	}
	prevTok, err := mapNullUUIDPtr(prev)
	if err != nil {
		return domain.Token{}, err
	}
	return domain.Token{
		UserID:    domain.UserID(userID),
		Token:     tok,
		IssuedAt:  fromMillis(issued),
		RegenDate: mapNullMillis(regen),
		PrevToken: prevTok,
		Class:     kind.String,
	}, nil
}
