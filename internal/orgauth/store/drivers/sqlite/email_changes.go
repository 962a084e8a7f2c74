package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/google/uuid"
)

type emailChangesRepo struct {
	q store.Querier
}

func (r *emailChangesRepo) CreateEmailChange(ctx context.Context, c domain.EmailChange) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orgauth_newemail (user_id, email, token, tokendate)
		VALUES (?, ?, ?, ?)`,
		int64(c.UserID), c.Email, c.Token.String(), toMillis(c.IssuedAt))
	return mapErr(err)
}

func (r *emailChangesRepo) GetEmailChange(
	ctx context.Context,
	id domain.UserID,
	token uuid.UUID,
) (domain.EmailChange, error) {
	var (
		email  string
		issued int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT email, tokendate FROM orgauth_newemail
		WHERE user_id = ? AND token = ?`,
		int64(id), token.String()).Scan(&email, &issued)
	if err != nil {
		return domain.EmailChange{}, mapErr(err)
	}
	return domain.EmailChange{
		UserID:   id,
		Email:    email,
		Token:    token,
		IssuedAt: fromMillis(issued),
	}, nil
}

func (r *emailChangesRepo) DeleteEmailChange(ctx context.Context, id domain.UserID, token uuid.UUID) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM orgauth_newemail WHERE user_id = ? AND token = ?`, int64(id), token.String())
	return mapErr(err)
}

func (r *emailChangesRepo) DeleteUserEmailChanges(ctx context.Context, id domain.UserID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM orgauth_newemail WHERE user_id = ?`, int64(id))
	return mapErr(err)
}

func (r *emailChangesRepo) DeleteExpiredEmailChanges(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := execCount(ctx, r.q, `DELETE FROM orgauth_newemail WHERE tokendate < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge email changes: %w", err)
	}
	return n, nil
}
