package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

const userCols = "id, first_name, last_name, email, password, " + auditCols

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	dest := append([]any{&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Password}, auditDest(&u.Audit)...)
	if err := row.Scan(dest...); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (first_name, last_name, email, password, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at, updated_by`
	err := s.db.QueryRow(ctx, q, u.FirstName, u.LastName, u.Email, u.Password, u.CreatedBy).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.UpdatedBy)
	return mapErr(err)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(s.db.QueryRow(ctx, q, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`
	return scanUser(s.db.QueryRow(ctx, q, email))
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE deleted_at IS NULL ORDER BY last_name, first_name, email`
	return s.queryUsers(ctx, q)
}

func (s *Store) queryUsers(ctx context.Context, q string, args ...any) ([]models.User, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

// UpdateUser writes profile fields; an empty Password keeps the stored hash.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	const q = `UPDATE users SET first_name = $2, last_name = $3, email = $4,
		password = COALESCE(NULLIF($5, ''), password), updated_at = NOW(), updated_by = $6
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING created_at, created_by, updated_at`
	err := s.db.QueryRow(ctx, q, u.ID, u.FirstName, u.LastName, u.Email, u.Password, u.UpdatedBy).
		Scan(&u.CreatedAt, &u.CreatedBy, &u.UpdatedAt)
	return mapErr(err)
}

func (s *Store) DeleteUser(ctx context.Context, id, by uuid.UUID) error {
	const q = `UPDATE users SET deleted_at = NOW(), deleted_by = $2, updated_at = NOW(), updated_by = $2
		WHERE id = $1 AND deleted_at IS NULL`
	return s.execOne(ctx, q, id, nullable(by))
}

func (s *Store) RoleID(ctx context.Context, role models.Role) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, string(role)).Scan(&id)
	return id, mapErr(err)
}

func (s *Store) UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	const q = `SELECT r.name FROM role_user ru
		JOIN roles r ON r.id = ru.role_id
		WHERE ru.user_id = $1 AND ru.deleted_at IS NULL`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	held := make(map[models.Role]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		held[models.Role(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var roles []models.Role
	for _, r := range models.Roles {
		if held[r] {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// execOne runs a single-row mutation and reports ErrNotFound when nothing matched.
func (s *Store) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullable(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
