package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psyopd/survey/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *userRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `user_id, user_type, password_hash, email, demographic_info, psychiatric_history,
	specialization, license_number, department, deleted, deleted_by, deleted_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var demo, hist []byte
	err := row.Scan(&u.UserID, &u.UserType, &u.PasswordHash, &u.Email, &demo, &hist,
		&u.Specialization, &u.LicenseNumber, &u.Department, &u.Deleted, &u.DeletedBy, &u.DeletedAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(demo) > 0 {
		if err := json.Unmarshal(demo, &u.DemographicInfo); err != nil {
			return nil, fmt.Errorf("decode demographic_info: %w", err)
		}
	}
	if len(hist) > 0 {
		if err := json.Unmarshal(hist, &u.PsychiatricHistory); err != nil {
			return nil, fmt.Errorf("decode psychiatric_history: %w", err)
		}
	}
	return &u, nil
}

func encodeSections(u *User) ([]byte, []byte, error) {
	demo, err := json.Marshal(u.DemographicInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("encode demographic_info: %w", err)
	}
	hist, err := json.Marshal(u.PsychiatricHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("encode psychiatric_history: %w", err)
	}
	return demo, hist, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	demo, hist, err := encodeSections(u)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (user_id, user_type, password_hash, email, demographic_info, psychiatric_history,
			specialization, license_number, department)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		u.UserID, u.UserType, u.PasswordHash, u.Email, demo, hist,
		u.Specialization, u.LicenseNumber, u.Department,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, userID string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE user_id = $1`, userID))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	demo, hist, err := encodeSections(u)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET email = $2, demographic_info = $3, psychiatric_history = $4,
			specialization = $5, license_number = $6, department = $7, updated_at = NOW()
		WHERE user_id = $1 AND NOT deleted
		RETURNING updated_at`,
		u.UserID, u.Email, demo, hist, u.Specialization, u.LicenseNumber, u.Department,
	).Scan(&u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE user_id = $1 AND NOT deleted`,
		userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) SoftDelete(ctx context.Context, userID, deletedBy string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET deleted = TRUE, deleted_by = $2, deleted_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND NOT deleted`,
		userID, deletedBy)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) ListPatients(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE user_type = 'patient' AND NOT deleted`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM users
		WHERE user_type = 'patient' AND NOT deleted
		ORDER BY user_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
