package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same queries run
// inside and outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type queries struct {
	db DBTX
}

func newQueries(db DBTX) *queries {
	return &queries{db: db}
}

type userRow struct {
	ID            string
	Email         string
	Name          string
	Image         string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const userColumns = `id, email, name, image, email_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (userRow, error) {
	var u userRow
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *queries) GetUserByID(ctx context.Context, id string) (userRow, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

func (q *queries) GetUserByEmail(ctx context.Context, email string) (userRow, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const createUser = `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *queries) CreateUser(ctx context.Context, u userRow) error {
	_, err := q.db.ExecContext(ctx, createUser,
		u.ID, u.Email, u.Name, u.Image, u.EmailVerified, u.CreatedAt, u.UpdatedAt)
	return err
}

const updateUserProfile = `
UPDATE users
SET name = ?, image = ?, email_verified = ?, updated_at = ?
WHERE id = ?`

func (q *queries) UpdateUserProfile(ctx context.Context, u userRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUserProfile,
		u.Name, u.Image, u.EmailVerified, u.UpdatedAt, u.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listUsers = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`

func (q *queries) ListUsers(ctx context.Context, limit, offset int) ([]userRow, error) {
	rows, err := q.db.QueryContext(ctx, listUsers, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []userRow
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const countUsers = `SELECT COUNT(*) FROM users`

func (q *queries) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&n)
	return n, err
}
