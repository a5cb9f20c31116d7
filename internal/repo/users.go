package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
)

// Users are owned by the identity subsystem; the core only reads them. The
// insert path exists for bootstrap tooling and tests.
func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return errors.New("id required")
	}
	if u.Role != domain.RoleClient && u.Role != domain.RoleAssistant {
		return errors.New("role must be client or assistant")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,role,verified,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Role, u.Verified, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,role,verified,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Role, &u.Verified, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	query := `SELECT id,role,verified,created_at FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Role, &u.Verified, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
