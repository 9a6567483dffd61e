package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dayshift/backend/internal/models"
)

const walletColumns = `id, worker_id, business_id, pending_balance, available_balance, currency, is_active, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ WalletRepo = (*Repository)(nil)
var _ TransactionRepo = (*Repository)(nil)

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.WorkerID, &w.BusinessID, &w.PendingBalance, &w.AvailableBalance, &w.Currency, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// scanGuarded is scanWallet for conditional updates, where no row means the
// guard failed rather than a missing wallet.
func scanGuarded(row pgx.Row) (*models.Wallet, error) {
	w, err := scanWallet(row)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrConditionFailed
	}
	return w, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (r *Repository) GetByOwner(ctx context.Context, tx pgx.Tx, owner models.WalletOwner) (*models.Wallet, error) {
	if owner.WorkerID != nil {
		return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE worker_id = $1`, *owner.WorkerID))
	}
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE business_id = $1`, *owner.BusinessID))
}

// Create inserts the wallet unless the owner already has one.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, w *models.Wallet) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, worker_id, business_id, pending_balance, available_balance, currency, is_active)
		VALUES ($1, $2, $3, 0, 0, $4, $5)
		ON CONFLICT DO NOTHING
	`, w.ID, w.WorkerID, w.BusinessID, w.Currency, w.IsActive)
	return err
}

// GetByIDForUpdate locks the wallet row. Call within a transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

func (r *Repository) AddPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		UPDATE wallets SET pending_balance = pending_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING `+walletColumns, amount, id))
}

func (r *Repository) MovePendingToAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return scanGuarded(tx.QueryRow(ctx, `
		UPDATE wallets
		SET pending_balance = pending_balance - $1, available_balance = available_balance + $1, updated_at = now()
		WHERE id = $2 AND pending_balance >= $1
		RETURNING `+walletColumns, amount, id))
}

func (r *Repository) SubtractPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return scanGuarded(tx.QueryRow(ctx, `
		UPDATE wallets SET pending_balance = pending_balance - $1, updated_at = now()
		WHERE id = $2 AND pending_balance >= $1
		RETURNING `+walletColumns, amount, id))
}

func (r *Repository) SubtractAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return scanGuarded(tx.QueryRow(ctx, `
		UPDATE wallets SET available_balance = available_balance - $1, updated_at = now()
		WHERE id = $2 AND available_balance >= $1
		RETURNING `+walletColumns, amount, id))
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE wallets SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CreateTx appends a ledger entry inside the given transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, booking_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, t.ID, t.WalletID, t.BookingID, t.Type, t.Amount, t.Description).Scan(&t.CreatedAt)
}

func (r *Repository) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_id, booking_id, type, amount, description, created_at
		FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at ASC, id ASC
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.BookingID, &t.Type, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
