package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ AccountStore = (*Repository)(nil)

// Create inserts a new account. Workers also get a profile row awaiting KYC.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, role string) (*Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acc := &Account{Email: email, DisplayName: displayName, Role: role}
	if err := tx.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, email, passwordHash, displayName, role).Scan(&acc.ID); err != nil {
		return nil, err
	}
	if role == RoleWorker {
		if err := tx.QueryRow(ctx, `
			INSERT INTO worker_profiles (worker_id) VALUES ($1)
			RETURNING kyc_status
		`, acc.ID).Scan(&acc.KYCStatus); err != nil {
			return nil, err
		}
	}
	return acc, tx.Commit(ctx)
}

// GetByEmail returns the account, with the worker's KYC status, and the
// password hash. Returns nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, string, error) {
	var a Account
	var passwordHash string
	row := r.pool.QueryRow(ctx, `
		SELECT a.id, a.email, a.name, a.role, COALESCE(wp.kyc_status, ''), a.password_hash
		FROM accounts a
		LEFT JOIN worker_profiles wp ON wp.worker_id = a.id
		WHERE a.email = $1
	`, email)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Role, &a.KYCStatus, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &a, passwordHash, nil
}
