package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/google/uuid"
)

type invitesRepo struct {
	q store.Querier
}

func (r *invitesRepo) CreateInvite(ctx context.Context, inv domain.Invite) error {
	var data sql.NullString
	if len(inv.Data) > 0 {
		data = sql.NullString{String: string(inv.Data), Valid: true}
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orgauth_user_invite (token, email, creator, data, tokendate)
		VALUES (?, ?, ?, ?, ?)`,
		inv.Token.String(),
		mapOptionalString(inv.Email),
		int64(inv.CreatorID),
		data,
		toMillis(inv.IssuedAt),
	)
	return mapErr(err)
}

func (r *invitesRepo) GetInvite(ctx context.Context, token uuid.UUID) (domain.Invite, error) {
	var (
		email, data sql.NullString
		creator     int64
		issued      int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT email, creator, data, tokendate FROM orgauth_user_invite
		WHERE token = ?`, token.String()).Scan(&email, &creator, &data, &issued)
	if err != nil {
		return domain.Invite{}, mapErr(err)
	}

	inv := domain.Invite{
		Token:     token,
		Email:     mapNullStringPtr(email),
		CreatorID: domain.UserID(creator),
		IssuedAt:  fromMillis(issued),
	}
	if data.Valid {
		inv.Data = json.RawMessage(data.String)
	}
	return inv, nil
}

func (r *invitesRepo) DeleteInvite(ctx context.Context, token uuid.UUID) (bool, error) {
	n, err := execCount(ctx, r.q, `DELETE FROM orgauth_user_invite WHERE token = ?`, token.String())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *invitesRepo) DeleteInvitesByCreator(ctx context.Context, id domain.UserID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM orgauth_user_invite WHERE creator = ?`, int64(id))
	return mapErr(err)
}

func (r *invitesRepo) DeleteExpiredInvites(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := execCount(ctx, r.q, `DELETE FROM orgauth_user_invite WHERE tokendate < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge invites: %w", err)
	}
	return n, nil
}
