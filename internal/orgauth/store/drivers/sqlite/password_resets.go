package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/google/uuid"
)

type passwordResetsRepo struct {
	q store.Querier
}

func (r *passwordResetsRepo) CreatePasswordReset(ctx context.Context, pr domain.PasswordReset) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orgauth_newpassword (user_id, token, tokendate)
		VALUES (?, ?, ?)`,
		int64(pr.UserID), pr.Token.String(), toMillis(pr.IssuedAt))
	return mapErr(err)
}

func (r *passwordResetsRepo) GetPasswordReset(
	ctx context.Context,
	id domain.UserID,
	token uuid.UUID,
) (domain.PasswordReset, error) {
	var issued int64
	err := r.q.QueryRowContext(ctx, `
		SELECT tokendate FROM orgauth_newpassword
		WHERE user_id = ? AND token = ?`,
		int64(id), token.String()).Scan(&issued)
	if err != nil {
		return domain.PasswordReset{}, mapErr(err)
	}
	return domain.PasswordReset{
		UserID:   id,
		Token:    token,
		IssuedAt: fromMillis(issued),
	}, nil
}

func (r *passwordResetsRepo) DeletePasswordReset(ctx context.Context, id domain.UserID, token uuid.UUID) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM orgauth_newpassword WHERE user_id = ? AND token = ?`, int64(id), token.String())
	return mapErr(err)
}

func (r *passwordResetsRepo) DeleteUserPasswordResets(ctx context.Context, id domain.UserID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM orgauth_newpassword WHERE user_id = ?`, int64(id))
	return mapErr(err)
}

func (r *passwordResetsRepo) DeleteExpiredPasswordResets(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := execCount(ctx, r.q, `DELETE FROM orgauth_newpassword WHERE tokendate < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge password resets: %w", err)
	}
	return n, nil
}
