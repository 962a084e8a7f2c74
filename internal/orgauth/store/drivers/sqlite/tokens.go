package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/google/uuid"
)

type tokensRepo struct {
	q store.Querier
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.Token) error {
	var class sql.NullString
	if t.Class != "" {
		class = sql.NullString{String: t.Class, Valid: true}
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orgauth_token (user_id, token, tokendate, regendate, prevtoken, type)
		VALUES (?, ?, ?, ?, ?, ?)`,
		int64(t.UserID),
		t.Token.String(),
		toMillis(t.IssuedAt),
		mapOptionalMillis(t.RegenDate),
		mapOptionalUUID(t.PrevToken),
		class,
	)
	return mapErr(err)
}

func (r *tokensRepo) GetToken(ctx context.Context, token uuid.UUID) (domain.Token, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM orgauth_token t WHERE t.token = ? LIMIT 1`, token.String())
	t, err := scanToken(row)
	if err != nil {
		return domain.Token{}, mapErr(err)
	}
	return t, nil
}

func (r *tokensRepo) GetUserByToken(
	ctx context.Context,
	token uuid.UUID,
) (domain.User, domain.Token, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`, `+tokenColumns+`
		FROM orgauth_token t
		JOIN orgauth_user u ON u.id = t.user_id
		WHERE t.token = ?
		LIMIT 1`, token.String())

	var (
		tokUser    int64
		rawToken   string
		issued     int64
		regen      sql.NullInt64
		prev, kind sql.NullString
	)
	u, err := scanUserWith(row, &tokUser, &rawToken, &issued, &regen, &prev, &kind)
	if err != nil {
		return domain.User{}, domain.Token{}, mapErr(err)
	}

	t, err := buildToken(tokUser, rawToken, issued, regen, prev, kind)
	if err != nil {
		return domain.User{}, domain.Token{}, err
	}
	return u, t, nil
}

func (r *tokensRepo) MarkRegen(ctx context.Context, token uuid.UUID, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orgauth_token SET regendate = ? WHERE token = ?`, toMillis(at), token.String())
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n > 1 {
		return false, fmt.Errorf("sqlite: token %s matched %d rows", token, n)
	}
	return n == 1, nil
}

func (r *tokensRepo) ClearPrevToken(ctx context.Context, token uuid.UUID) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE orgauth_token SET prevtoken = NULL WHERE token = ?`, token.String())
	return mapErr(err)
}

func (r *tokensRepo) DeleteChainLink(ctx context.Context, token, keep uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM orgauth_token
		WHERE token = ?1 OR (prevtoken = ?1 AND token <> ?2)`,
		token.String(), keep.String())
	return mapErr(err)
}

func (r *tokensRepo) DeleteToken(ctx context.Context, token uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM orgauth_token WHERE token = ?`, token.String())
	return mapErr(err)
}

func (r *tokensRepo) DeleteUserTokens(ctx context.Context, id domain.UserID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM orgauth_token WHERE user_id = ?`, int64(id))
	return mapErr(err)
}

func (r *tokensRepo) DeleteExpiredTokens(
	ctx context.Context,
	cutoff time.Time,
	skipClasses ...string,
) (int64, error) {
	if len(skipClasses) == 0 {
		return execCount(ctx, r.q, `DELETE FROM orgauth_token WHERE tokendate < ?`, toMillis(cutoff))
	}

	args := make([]any, 0, len(skipClasses)+1)
	args = append(args, toMillis(cutoff))
	for _, class := range skipClasses {
		args = append(args, class)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(skipClasses)), ", ")

	return execCount(ctx, r.q,
		`DELETE FROM orgauth_token WHERE tokendate < ? AND (type IS NULL OR type NOT IN (`+placeholders+`))`,
		args...)
}

func (r *tokensRepo) DeleteExpiredTokensByClass(
	ctx context.Context,
	class string,
	cutoff time.Time,
) (int64, error) {
	return execCount(ctx, r.q,
		`DELETE FROM orgauth_token WHERE tokendate < ? AND type = ?`, toMillis(cutoff), class)
}

// execCount runs a bulk statement and returns how many rows it touched.
func execCount(ctx context.Context, q store.Querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}
