package db

import (
	"context"
	"fmt"

	"dualauth-server/src/models"
)

const userColumns = `id, email, name, created_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query, user.ID, user.Email, user.Name))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user %s", user.Email))
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user %d", userID))
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = LOWER($1)`
	u, err := scanUser(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, mapError(err, "user "+email)
	}
	return u, nil
}
