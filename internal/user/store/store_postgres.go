package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	"userdir/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

const userColumns = `id, email, password, role, first_name, last_name, birth_date, address, phone_number`

// PostgresUserStore persists users in the users table.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Save inserts when ID is zero and updates otherwise. A duplicate email maps
// to sentinel.ErrConflict; updating a missing row to sentinel.ErrNotFound.
func (s *PostgresUserStore) Save(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, fmt.Errorf("save nil user: %w", sentinel.ErrInvalidState)
	}
	out := *user
	if out.ID.IsZero() {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO users (email, password, role, first_name, last_name, birth_date, address, phone_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, out.Email, out.Password, string(out.Role), out.FirstName, out.LastName, out.BirthDate, out.Address, out.PhoneNumber).
			Scan(&out.ID)
		if err != nil {
			return nil, mapWriteError("insert user", err)
		}
		return &out, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			email = $2, password = $3, role = $4, first_name = $5, last_name = $6,
			birth_date = $7, address = $8, phone_number = $9, updated_at = now()
		WHERE id = $1
	`, int64(out.ID), out.Email, out.Password, string(out.Role), out.FirstName, out.LastName, out.BirthDate, out.Address, out.PhoneNumber)
	if err != nil {
		return nil, mapWriteError("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &out, nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, int64(userID))
	return scanOne(row, "find user by id")
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanOne(row, "find user by email")
}

func (s *PostgresUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by email: %w", err)
	}
	return exists, nil
}

// FindByBirthDateRange returns users born within [from, to], both inclusive,
// ordered by birth date then ID.
func (s *PostgresUserStore) FindByBirthDateRange(ctx context.Context, from, to id.Date) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE birth_date BETWEEN $1 AND $2
		ORDER BY birth_date, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("find by birth date range: %w", err)
	}
	defer rows.Close()

	out := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func (s *PostgresUserStore) DeleteByID(ctx context.Context, userID id.UserID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, int64(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row, op string) (*models.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u      models.User
		userID int64
		role   string
	)
	if err := row.Scan(&userID, &u.Email, &u.Password, &role, &u.FirstName, &u.LastName, &u.BirthDate, &u.Address, &u.PhoneNumber); err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.Role = models.Role(role)
	return &u, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
