package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dayshift/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletRepo is the wallet row storage used by the ledger. The balance
// mutators must be atomic conditional updates returning
// models.ErrConditionFailed when the guarded balance is below amount.
type WalletRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByOwner(ctx context.Context, tx pgx.Tx, owner models.WalletOwner) (*models.Wallet, error)
	Create(ctx context.Context, tx pgx.Tx, w *models.Wallet) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error)
	AddPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error)
	MovePendingToAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error)
	SubtractPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error)
	SubtractAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// TransactionRepo is the append-only transaction log.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error)
}

// Service is the two-tier wallet ledger. Mutations run inside the caller's
// transaction and lock the wallet row first, so concurrent releases on the
// same wallet serialize and the loser sees the updated balance.
type Service struct {
	Pool         TxBeginner
	Wallets      WalletRepo
	Transactions TransactionRepo
	Now          func() time.Time
}

// NewService returns a ledger Service.
func NewService(pool TxBeginner, wallets WalletRepo, transactions TransactionRepo) *Service {
	return &Service{Pool: pool, Wallets: wallets, Transactions: transactions, Now: time.Now}
}

// ReconcileReport compares stored balances to the ones rebuilt from the log.
type ReconcileReport struct {
	WalletID          uuid.UUID `json:"wallet_id"`
	PendingBalance    int64     `json:"pending_balance"`
	AvailableBalance  int64     `json:"available_balance"`
	LedgerPending     int64     `json:"ledger_pending"`
	LedgerAvailable   int64     `json:"ledger_available"`
	TransactionsCount int       `json:"transactions_count"`
}

// Balanced reports whether the stored balances match the log.
func (r ReconcileReport) Balanced() bool {
	return r.PendingBalance == r.LedgerPending && r.AvailableBalance == r.LedgerAvailable
}

// GetOrCreateWallet returns the owner's wallet, creating it with zero balances
// on first use.
func (s *Service) GetOrCreateWallet(ctx context.Context, tx pgx.Tx, owner models.WalletOwner, currency string) (*models.Wallet, error) {
	if !owner.Valid() {
		return nil, fmt.Errorf("%w: wallet needs exactly one owner", models.ErrInvalidState)
	}
	w, err := s.Wallets.GetByOwner(ctx, tx, owner)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if err := s.Wallets.Create(ctx, tx, &models.Wallet{
		ID:         uuid.New(),
		WorkerID:   owner.WorkerID,
		BusinessID: owner.BusinessID,
		Currency:   currency,
		IsActive:   true,
	}); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	// Re-read: a concurrent creator may have won the insert.
	return s.Wallets.GetByOwner(ctx, tx, owner)
}

// CreditPending adds amount to the wallet's pending balance for a booking.
func (s *Service) CreditPending(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID uuid.UUID) (*models.Wallet, error) {
	if _, err := s.lockActive(ctx, tx, walletID, amount); err != nil {
		return nil, err
	}
	w, err := s.Wallets.AddPending(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, tx, walletID, &bookingID, models.TxTypePending, amount, "payment held for review"); err != nil {
		return nil, err
	}
	return w, nil
}

// Release moves amount from pending to available. A pending balance below
// amount means a double release or an earlier bug and is rejected, never clamped.
func (s *Service) Release(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID uuid.UUID, description string) (*models.Wallet, error) {
	cur, err := s.lockActive(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	if cur.PendingBalance < amount {
		return nil, fmt.Errorf("%w: pending balance %d below release amount %d", models.ErrInvalidState, cur.PendingBalance, amount)
	}
	w, err := s.Wallets.MovePendingToAvailable(ctx, tx, walletID, amount)
	if errors.Is(err, models.ErrConditionFailed) {
		return nil, fmt.Errorf("%w: pending balance below release amount %d", models.ErrInvalidState, amount)
	}
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, tx, walletID, &bookingID, models.TxTypeReleased, amount, description); err != nil {
		return nil, err
	}
	return w, nil
}

// CancelPending reverses a CreditPending for the same booking.
func (s *Service) CancelPending(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID uuid.UUID) (*models.Wallet, error) {
	cur, err := s.lockActive(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	if cur.PendingBalance < amount {
		return nil, fmt.Errorf("%w: pending balance %d below reversal amount %d", models.ErrInvalidState, cur.PendingBalance, amount)
	}
	w, err := s.Wallets.SubtractPending(ctx, tx, walletID, amount)
	if errors.Is(err, models.ErrConditionFailed) {
		return nil, fmt.Errorf("%w: pending balance below reversal amount %d", models.ErrInvalidState, amount)
	}
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, tx, walletID, &bookingID, models.TxTypeCancelled, amount, "pending payment cancelled"); err != nil {
		return nil, err
	}
	return w, nil
}

// DebitAvailable withdraws amount from the available balance. bookingID is
// set when the debit settles or claws back a specific booking.
func (s *Service) DebitAvailable(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID *uuid.UUID, description string) (*models.Wallet, error) {
	cur, err := s.lockActive(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	if cur.AvailableBalance < amount {
		return nil, models.ErrInsufficientFunds
	}
	w, err := s.Wallets.SubtractAvailable(ctx, tx, walletID, amount)
	if errors.Is(err, models.ErrConditionFailed) {
		return nil, models.ErrInsufficientFunds
	}
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, tx, walletID, bookingID, models.TxTypeDebit, amount, description); err != nil {
		return nil, err
	}
	return w, nil
}

// Withdraw runs DebitAvailable in its own transaction.
func (s *Service) Withdraw(ctx context.Context, walletID uuid.UUID, amount int64) (*models.Wallet, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	w, err := s.DebitAvailable(ctx, tx, walletID, amount, nil, "withdrawal")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// WalletForOwner returns the owner's wallet, creating it if needed.
func (s *Service) WalletForOwner(ctx context.Context, owner models.WalletOwner) (*models.Wallet, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	w, err := s.GetOrCreateWallet(ctx, tx, owner, "")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Deactivate freezes a wallet. Frozen wallets reject every mutation.
func (s *Service) Deactivate(ctx context.Context, walletID uuid.UUID) error {
	return s.Wallets.SetActive(ctx, walletID, false)
}

func (s *Service) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error) {
	return s.Transactions.ListByWallet(ctx, walletID)
}

// Reconcile rebuilds both balances from the transaction log.
func (s *Service) Reconcile(ctx context.Context, walletID uuid.UUID) (ReconcileReport, error) {
	w, err := s.Wallets.GetByID(ctx, walletID)
	if err != nil {
		return ReconcileReport{}, err
	}
	entries, err := s.Transactions.ListByWallet(ctx, walletID)
	if err != nil {
		return ReconcileReport{}, err
	}
	rep := ReconcileReport{
		WalletID:          walletID,
		PendingBalance:    w.PendingBalance,
		AvailableBalance:  w.AvailableBalance,
		TransactionsCount: len(entries),
	}
	for _, e := range entries {
		rep.LedgerPending += e.PendingDelta()
		rep.LedgerAvailable += e.AvailableDelta()
	}
	return rep, nil
}

func (s *Service) lockActive(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", models.ErrInvalidState, amount)
	}
	w, err := s.Wallets.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}
	if !w.IsActive {
		return nil, models.ErrInsufficientContext
	}
	return w, nil
}

func (s *Service) record(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, bookingID *uuid.UUID, txType string, amount int64, description string) error {
	return s.Transactions.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    walletID,
		BookingID:   bookingID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		CreatedAt:   s.Now(),
	})
}
