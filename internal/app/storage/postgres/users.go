package postgres

import (
	"context"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/user"
)

type userRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Phone     string    `db:"phone"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r userRow) toDomain() user.User {
	return user.User{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Phone:     r.Phone,
		Role:      user.Role(r.Role),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const userColumns = `id, email, name, phone, role, created_at, updated_at`

func (s *Store) UpsertUser(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO users (id, email, name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, phone = EXCLUDED.phone,
		    role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		u.ID, u.Email, u.Name, u.Phone, string(u.Role), now)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return user.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]user.User, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1`, limit); err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
