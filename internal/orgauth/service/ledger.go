package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
	"github.com/google/uuid"
)

const (
	// busyRetries bounds how often ResolveAndMaybeRotate is attempted when
	// the database reports it is busy.
	busyRetries = 10

	// busyRetryDelay is the fixed pause between those attempts.
	busyRetryDelay = 10 * time.Millisecond

	// maxChainDepth bounds the ancestor walk when a chain is removed.
	maxChainDepth = 1000
)

// SweepKind selects the table SweepExpired cleans.
type SweepKind string

const (
	SweepLogin  SweepKind = "login"
	SweepEmail  SweepKind = "email"
	SweepReset  SweepKind = "reset"
	SweepInvite SweepKind = "invite"
)

// IsTokenExpired reports whether a token issued at issued is outside window
// at now. A token from the future counts as expired.
func IsTokenExpired(window time.Duration, issued, now time.Time) bool {
	return now.Before(issued) || now.Sub(issued) > window
}

// TokenLedger issues, resolves, rotates and expires login tokens.
//
// Rotation never deletes the old token. It marks it with a regen date and
// issues a successor pointing back at it, so requests already in flight with
// the old token keep working. Once the grace window after the mark has
// passed, the next request that resolves the successor deletes the
// ancestors.
type TokenLedger struct {
	Store  store.Store
	Config Config
	Now    func() time.Time

	// RetryDelay overrides busyRetryDelay.
	RetryDelay time.Duration
}

func (s *TokenLedger) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue creates a fresh token for user. predecessor is set when the token
// replaces another one.
func (s *TokenLedger) Issue(ctx context.Context, user domain.UserID, predecessor *uuid.UUID) (uuid.UUID, error) {
	return s.issue(ctx, s.Store, user, "", predecessor, s.now())
}

// IssueClass creates a token of a named class, such as a long lived API
// token. It expires after the class window in Config.ClassExpirations and
// its rotated successors keep the class.
func (s *TokenLedger) IssueClass(ctx context.Context, user domain.UserID, class string) (uuid.UUID, error) {
	if class == "" {
		return uuid.Nil, errors.New("token class must not be empty")
	}
	return s.issue(ctx, s.Store, user, class, nil, s.now())
}

func (s *TokenLedger) issue(
	ctx context.Context,
	st store.Store,
	user domain.UserID,
	class string,
	predecessor *uuid.UUID,
	now time.Time,
) (uuid.UUID, error) {
	tok := domain.Token{
		UserID:    user,
		Token:     uuid.New(),
		IssuedAt:  now,
		PrevToken: predecessor,
		Class:     class,
	}
	if err := st.Tokens().CreateToken(ctx, tok); err != nil {
		return uuid.Nil, err
	}
	return tok.Token, nil
}

// ResolveForRequest returns the owner of token. It fails with
// ErrTokenInvalid for unknown tokens, ErrAccountDeactivated for inactive
// owners and ErrTokenExpired when the login window has passed.
func (s *TokenLedger) ResolveForRequest(ctx context.Context, token uuid.UUID) (domain.User, error) {
	u, _, err := s.resolve(ctx, s.Store, token, s.now())
	return u, err
}

func (s *TokenLedger) resolve(
	ctx context.Context,
	st store.Store,
	token uuid.UUID,
	now time.Time,
) (domain.User, domain.Token, error) {
	u, tok, err := st.Tokens().GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.Token{}, ErrTokenInvalid
		}
		return domain.User{}, domain.Token{}, err
	}

	if !u.Active {
		return domain.User{}, domain.Token{}, ErrAccountDeactivated
	}

	if w := s.Config.tokenWindow(tok.Class); w > 0 && IsTokenExpired(w, tok.IssuedAt, now) {
		return domain.User{}, domain.Token{}, ErrTokenExpired
	}

	if s.Config.RegenLoginTokens && tok.PrevToken != nil {
		if err := s.prune(ctx, st, &tok, now); err != nil {
			return domain.User{}, domain.Token{}, err
		}
	}

	return u, tok, nil
}

// prune drops tok's ancestors once the grace window after its predecessor
// was marked has passed. A predecessor that no longer exists is forgotten.
func (s *TokenLedger) prune(ctx context.Context, st store.Store, tok *domain.Token, now time.Time) error {
	prev, err := st.Tokens().GetToken(ctx, *tok.PrevToken)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := st.Tokens().ClearPrevToken(ctx, tok.Token); err != nil {
			return err
		}
		tok.PrevToken = nil
		return nil
	case err != nil:
		return err
	}

	if prev.RegenDate == nil || now.Sub(*prev.RegenDate) <= s.Config.grace() {
		return nil
	}

	if err := removeChain(ctx, st, prev.Token, tok.Token); err != nil {
		return err
	}
	if err := st.Tokens().ClearPrevToken(ctx, tok.Token); err != nil {
		return err
	}
	tok.PrevToken = nil

	slogx.FromContext(ctx).Debug("token chain collapsed",
		slog.Int64("user_id", int64(tok.UserID)),
	)
	return nil
}

// removeChain deletes start and every ancestor reachable through prevtoken.
// Siblings forking off a deleted row go too, except keep. The walk is
// iterative and stops on a repeated token or after maxChainDepth rows.
func removeChain(ctx context.Context, st store.Store, start, keep uuid.UUID) error {
	visited := map[uuid.UUID]struct{}{keep: {}}
	next := &start

	for depth := 0; next != nil && depth < maxChainDepth; depth++ {
		cur := *next
		if _, seen := visited[cur]; seen {
			break
		}
		visited[cur] = struct{}{}

		t, err := st.Tokens().GetToken(ctx, cur)
		switch {
		case errors.Is(err, store.ErrNotFound):
			next = nil
		case err != nil:
			return err
		default:
			next = t.PrevToken
		}

		if err := st.Tokens().DeleteChainLink(ctx, cur, keep); err != nil {
			return err
		}
	}
	return nil
}

// ResolveAndMaybeRotate resolves the carrier's token and rotates it when it
// has not been marked yet or its grace window has passed. The new token is
// handed to the carrier after the transaction commits.
//
// The whole operation is retried when the database is busy; after
// busyRetries attempts it returns ErrDatabaseBusy.
func (s *TokenLedger) ResolveAndMaybeRotate(ctx context.Context, carrier TokenCarrier) (domain.User, error) {
	l := slogx.FromContext(ctx)

	token := carrier.Get()
	if token == nil {
		return domain.User{}, ErrTokenInvalid
	}

	delay := s.RetryDelay
	if delay <= 0 {
		delay = busyRetryDelay
	}

	for attempt := 1; ; attempt++ {
		u, rotated, err := s.resolveAndRotateOnce(ctx, *token)
		if errors.Is(err, store.ErrBusy) {
			if attempt >= busyRetries {
				l.Warn("giving up on token rotation", slog.Int("attempts", attempt), slog.Any("error", err))
				return domain.User{}, fmt.Errorf("%w: %w", ErrDatabaseBusy, err)
			}
			l.Debug("database busy, retrying token rotation", slog.Int("attempt", attempt))

			select {
			case <-ctx.Done():
				return domain.User{}, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		if err != nil {
			return domain.User{}, err
		}

		if rotated != nil {
			carrier.Set(*rotated)
			l.Debug("login token rotated", slog.Int64("user_id", int64(u.ID)))
		}
		return u, nil
	}
}

func (s *TokenLedger) resolveAndRotateOnce(ctx context.Context, token uuid.UUID) (domain.User, *uuid.UUID, error) {
	var (
		u       domain.User
		rotated *uuid.UUID
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		now := s.now()

		var (
			tok domain.Token
			err error
		)
		u, tok, err = s.resolve(ctx, tx, token, now)
		if err != nil {
			return err
		}

		if !s.Config.RegenLoginTokens {
			return nil
		}
		if tok.RegenDate != nil && now.Sub(*tok.RegenDate) <= s.Config.grace() {
			return nil
		}

		// 1. Mark the current token so in-flight requests keep working
		if _, err := tx.Tokens().MarkRegen(ctx, tok.Token, now); err != nil {
			return err
		}

		// 2. Issue the successor
		next, err := s.issue(ctx, tx, u.ID, tok.Class, &tok.Token, now)
		if err != nil {
			return err
		}
		rotated = &next
		return nil
	})
	if err != nil {
		return domain.User{}, nil, err
	}
	return u, rotated, nil
}

// Revoke deletes token, its ancestors and any token rotated directly from
// it, which ends the whole session.
func (s *TokenLedger) Revoke(ctx context.Context, token uuid.UUID) error {
	return removeChain(ctx, s.Store, token, uuid.Nil)
}

// RevokeAll deletes every token of user.
func (s *TokenLedger) RevokeAll(ctx context.Context, st store.Store, user domain.UserID) error {
	return st.Tokens().DeleteUserTokens(ctx, user)
}

// SweepExpired deletes rows of kind issued more than window ago. The login
// sweep covers every token except those whose class has its own window.
func (s *TokenLedger) SweepExpired(ctx context.Context, kind SweepKind, window time.Duration) (int64, error) {
	cutoff := s.now().Add(-window)

	switch kind {
	case SweepLogin:
		return s.Store.Tokens().DeleteExpiredTokens(ctx, cutoff, s.Config.sweptClasses()...)
	case SweepEmail:
		return s.Store.EmailChanges().DeleteExpiredEmailChanges(ctx, cutoff)
	case SweepReset:
		return s.Store.PasswordResets().DeleteExpiredPasswordResets(ctx, cutoff)
	case SweepInvite:
		return s.Store.Invites().DeleteExpiredInvites(ctx, cutoff)
	}
	return 0, fmt.Errorf("unknown sweep kind %q", kind)
}

// SweepExpiredClass is SweepExpired for login tokens of one class.
func (s *TokenLedger) SweepExpiredClass(ctx context.Context, class string, window time.Duration) (int64, error) {
	return s.Store.Tokens().DeleteExpiredTokensByClass(ctx, class, s.now().Add(-window))
}
