package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getUser = `SELECT id, email, first_name, last_name, role, created_at FROM users WHERE id = $1`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUser, id).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt)
	return u, err
}

const upsertUser = `INSERT INTO users (id, email, first_name, last_name, role)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	email = EXCLUDED.email,
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	role = EXCLUDED.role,
	updated_at = now()
RETURNING id, email, first_name, last_name, role, created_at`

type UpsertUserParams struct {
	ID        string
	Email     pgtype.Text
	FirstName pgtype.Text
	LastName  pgtype.Text
	Role      string
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, upsertUser, arg.ID, arg.Email, arg.FirstName, arg.LastName, arg.Role).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt)
	return u, err
}
