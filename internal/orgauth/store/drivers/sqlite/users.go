package sqlite

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/google/uuid"
)

type usersRepo struct {
	q store.Querier
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) (domain.UserID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO orgauth_user
			(uuid, name, hashwd, salt, email, registration_key, admin, active, remote_url, cookie, createdate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UUID.String(),
		u.Name,
		u.PasswordHash,
		u.Salt,
		u.Email,
		mapOptionalString(u.RegistrationKey),
		u.Admin,
		u.Active,
		mapOptionalString(u.RemoteURL),
		mapOptionalString(u.Cookie),
		toMillis(u.CreatedAt),
	)
	if err != nil {
		return 0, mapErr(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: last insert id: %w", err)
	}
	return domain.UserID(id), nil
}

func (r *usersRepo) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM orgauth_user u WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapErr(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	return r.getOne(ctx, `u.id = ?`, int64(id))
}

func (r *usersRepo) GetUserByName(ctx context.Context, name string) (domain.User, error) {
	return r.getOne(ctx, `u.name = ?`, name)
}

func (r *usersRepo) GetUserByUUID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	return r.getOne(ctx, `u.uuid = ?`, id.String())
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+userColumns+` FROM orgauth_user u ORDER BY u.id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return users, nil
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	return r.execOne(ctx, `
		UPDATE orgauth_user SET
			name = ?, hashwd = ?, salt = ?, email = ?, registration_key = ?,
			admin = ?, active = ?, remote_url = ?, cookie = ?
		WHERE id = ?`,
		u.Name,
		u.PasswordHash,
		u.Salt,
		u.Email,
		mapOptionalString(u.RegistrationKey),
		u.Admin,
		u.Active,
		mapOptionalString(u.RemoteURL),
		mapOptionalString(u.Cookie),
		int64(u.ID),
	)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, id domain.UserID, hash string) error {
	return r.execOne(ctx, `UPDATE orgauth_user SET hashwd = ? WHERE id = ?`, hash, int64(id))
}

func (r *usersRepo) UpdateEmail(ctx context.Context, id domain.UserID, email string) error {
	return r.execOne(ctx, `UPDATE orgauth_user SET email = ? WHERE id = ?`, email, int64(id))
}

func (r *usersRepo) ClearRegistrationKey(ctx context.Context, id domain.UserID) error {
	return r.execOne(ctx, `UPDATE orgauth_user SET registration_key = NULL WHERE id = ?`, int64(id))
}

func (r *usersRepo) UpdateRemote(ctx context.Context, id domain.UserID, remoteURL, cookie *string) error {
	return r.execOne(ctx, `UPDATE orgauth_user SET remote_url = ?, cookie = ? WHERE id = ?`,
		mapOptionalString(remoteURL), mapOptionalString(cookie), int64(id))
}

func (r *usersRepo) DeleteUser(ctx context.Context, id domain.UserID) error {
	return r.execOne(ctx, `DELETE FROM orgauth_user WHERE id = ?`, int64(id))
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orgauth_user`).Scan(&count); err != nil {
		return false, mapErr(err)
	}
	return count == 0, nil
}

// execOne runs a statement that must touch exactly one user row.
func (r *usersRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
