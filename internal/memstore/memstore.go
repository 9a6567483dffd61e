// Package memstore is an in-memory implementation of the booking engine's
// stores, for tests only; nothing outside _test.go files imports it.
// Transactions are serialized and roll back to a snapshot, which is enough to
// exercise the services' locking and atomicity without Postgres.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dayshift/backend/internal/models"
)

// FaultFunc lets a test fail a store operation. op is the method name and id
// the primary key it was called with.
type FaultFunc func(op string, id uuid.UUID) error

type dayKey struct {
	business, worker uuid.UUID
	day              string
}

type monthKey struct {
	business, worker uuid.UUID
	month            string
}

type state struct {
	wallets      map[uuid.UUID]models.Wallet
	transactions []models.WalletTransaction
	jobs         map[uuid.UUID]models.Job
	bookings     map[uuid.UUID]models.Booking
	disputes     map[uuid.UUID]models.Dispute
	workedDays   map[dayKey]bool
	tracking     map[monthKey]int
}

func (s *state) clone() *state {
	return &state{
		wallets:      maps.Clone(s.wallets),
		transactions: append([]models.WalletTransaction(nil), s.transactions...),
		jobs:         maps.Clone(s.jobs),
		bookings:     maps.Clone(s.bookings),
		disputes:     maps.Clone(s.disputes),
		workedDays:   maps.Clone(s.workedDays),
		tracking:     maps.Clone(s.tracking),
	}
}

// DB holds every table. Use the typed views to satisfy each service's store.
type DB struct {
	txMu sync.Mutex // held for the lifetime of a transaction

	mu       sync.Mutex
	data     *state
	verified []uuid.UUID
	fault    FaultFunc
}

func New() *DB {
	return &DB{data: &state{
		wallets:    map[uuid.UUID]models.Wallet{},
		jobs:       map[uuid.UUID]models.Job{},
		bookings:   map[uuid.UUID]models.Booking{},
		disputes:   map[uuid.UUID]models.Dispute{},
		workedDays: map[dayKey]bool{},
		tracking:   map[monthKey]int{},
	}}
}

// Begin starts a transaction. Only one transaction runs at a time, so a second
// caller blocks the way it would on a row lock.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.txMu.Lock()
	db.mu.Lock()
	snap := db.data.clone()
	db.mu.Unlock()
	return &Tx{db: db, snapshot: snap}, nil
}

// SetFault installs f for subsequent operations; nil clears it.
func (db *DB) SetFault(f FaultFunc) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fault = f
}

func (db *DB) check(op string, id uuid.UUID) error {
	if db.fault == nil {
		return nil
	}
	return db.fault(op, id)
}

// AddJob seeds a job posting.
func (db *DB) AddJob(j models.Job) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.jobs[j.ID] = j
}

// AddVerifiedWorker seeds a worker that passed KYC.
func (db *DB) AddVerifiedWorker(ids ...uuid.UUID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.verified = append(db.verified, ids...)
}

// PutBooking stores b as-is, bypassing the state machine.
func (db *DB) PutBooking(b models.Booking) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.bookings[b.ID] = b
}

// SetDaysWorked overwrites a tracking counter.
func (db *DB) SetDaysWorked(businessID, workerID uuid.UUID, month time.Time, days int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.tracking[monthKey{businessID, workerID, month.Format("2006-01")}] = days
}

func (db *DB) Wallets() *WalletStore           { return &WalletStore{db} }
func (db *DB) Transactions() *TransactionStore { return &TransactionStore{db} }
func (db *DB) Bookings() *BookingStore         { return &BookingStore{db} }
func (db *DB) Disputes() *DisputeStore         { return &DisputeStore{db} }
func (db *DB) Compliance() *ComplianceStore    { return &ComplianceStore{db} }

// ---------------------------------------------------------------------------
// Tx
// ---------------------------------------------------------------------------

var errTxClosed = errors.New("memstore: transaction closed")

// Tx satisfies pgx.Tx. Only Commit and Rollback do anything.
type Tx struct {
	db       *DB
	snapshot *state
	done     bool
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("memstore: nested transactions are not supported")
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return errTxClosed
	}
	t.done = true
	t.db.txMu.Unlock()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.db.mu.Lock()
	t.db.data = t.snapshot
	t.db.mu.Unlock()
	t.db.txMu.Unlock()
	return nil
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *Tx) Conn() *pgx.Conn { return nil }

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

type WalletStore struct{ db *DB }

func (s *WalletStore) GetByID(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	w, ok := s.db.data.wallets[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &w, nil
}

func (s *WalletStore) GetByOwner(_ context.Context, _ pgx.Tx, owner models.WalletOwner) (*models.Wallet, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, w := range s.db.data.wallets {
		if sameOwner(w, owner) {
			return &w, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *WalletStore) Create(_ context.Context, _ pgx.Tx, w *models.Wallet) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("CreateWallet", w.ID); err != nil {
		return err
	}
	for _, existing := range s.db.data.wallets {
		if sameOwner(existing, models.WalletOwner{WorkerID: w.WorkerID, BusinessID: w.BusinessID}) {
			return nil
		}
	}
	cp := *w
	s.db.data.wallets[w.ID] = cp
	return nil
}

func (s *WalletStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	return s.GetByID(ctx, id)
}

func (s *WalletStore) AddPending(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return s.mutate("AddPending", id, func(w *models.Wallet) bool {
		w.PendingBalance += amount
		return true
	})
}

func (s *WalletStore) MovePendingToAvailable(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return s.mutate("MovePendingToAvailable", id, func(w *models.Wallet) bool {
		if w.PendingBalance < amount {
			return false
		}
		w.PendingBalance -= amount
		w.AvailableBalance += amount
		return true
	})
}

func (s *WalletStore) SubtractPending(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return s.mutate("SubtractPending", id, func(w *models.Wallet) bool {
		if w.PendingBalance < amount {
			return false
		}
		w.PendingBalance -= amount
		return true
	})
}

func (s *WalletStore) SubtractAvailable(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (*models.Wallet, error) {
	return s.mutate("SubtractAvailable", id, func(w *models.Wallet) bool {
		if w.AvailableBalance < amount {
			return false
		}
		w.AvailableBalance -= amount
		return true
	})
}

func (s *WalletStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	_, err := s.mutate("SetActive", id, func(w *models.Wallet) bool {
		w.IsActive = active
		return true
	})
	return err
}

func (s *WalletStore) mutate(op string, id uuid.UUID, fn func(w *models.Wallet) bool) (*models.Wallet, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(op, id); err != nil {
		return nil, err
	}
	w, ok := s.db.data.wallets[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !fn(&w) {
		return nil, models.ErrConditionFailed
	}
	w.UpdatedAt = time.Now()
	s.db.data.wallets[id] = w
	return &w, nil
}

func sameOwner(w models.Wallet, owner models.WalletOwner) bool {
	if owner.WorkerID != nil {
		return w.WorkerID != nil && *w.WorkerID == *owner.WorkerID
	}
	if owner.BusinessID != nil {
		return w.BusinessID != nil && *w.BusinessID == *owner.BusinessID
	}
	return false
}

// ---------------------------------------------------------------------------
// Wallet transactions
// ---------------------------------------------------------------------------

type TransactionStore struct{ db *DB }

func (s *TransactionStore) CreateTx(_ context.Context, _ pgx.Tx, t *models.WalletTransaction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("CreateTx", t.WalletID); err != nil {
		return err
	}
	s.db.data.transactions = append(s.db.data.transactions, *t)
	return nil
}

func (s *TransactionStore) ListByWallet(_ context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.WalletTransaction
	for _, t := range s.db.data.transactions {
		if t.WalletID == walletID {
			cp := t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Bookings
// ---------------------------------------------------------------------------

type BookingStore struct{ db *DB }

func (s *BookingStore) GetJob(_ context.Context, jobID uuid.UUID) (*models.Job, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	j, ok := s.db.data.jobs[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &j, nil
}

func (s *BookingStore) Create(_ context.Context, _ pgx.Tx, b *models.Booking) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("CreateBooking", b.ID); err != nil {
		return err
	}
	if s.db.activeApplication(b.WorkerID, b.JobID) {
		return fmt.Errorf("%w: worker %s already applied to job %s", models.ErrInvalidState, b.WorkerID, b.JobID)
	}
	s.db.data.bookings[b.ID] = *b
	return nil
}

func (s *BookingStore) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.data.bookings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &b, nil
}

func (s *BookingStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	return s.GetByID(ctx, id)
}

func (s *BookingStore) Update(_ context.Context, _ pgx.Tx, b *models.Booking) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("UpdateBooking", b.ID); err != nil {
		return err
	}
	if _, ok := s.db.data.bookings[b.ID]; !ok {
		return models.ErrNotFound
	}
	s.db.data.bookings[b.ID] = *b
	return nil
}

func (s *BookingStore) HasActiveApplication(_ context.Context, _ pgx.Tx, workerID, jobID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.activeApplication(workerID, jobID), nil
}

// activeApplication mirrors the bookings_one_active_application index.
// Caller holds db.mu.
func (db *DB) activeApplication(workerID, jobID uuid.UUID) bool {
	for _, b := range db.data.bookings {
		if b.WorkerID != workerID || b.JobID != jobID {
			continue
		}
		switch b.Status {
		case models.BookingStatusPending, models.BookingStatusAccepted, models.BookingStatusInProgress:
			return true
		}
	}
	return false
}

func (s *BookingStore) HasActiveDispute(_ context.Context, _ pgx.Tx, bookingID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.activeDispute(bookingID)
	return ok, nil
}

func (s *BookingStore) ListDuePayments(_ context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Booking
	for _, b := range s.db.data.bookings {
		if b.PaymentStatus == models.PaymentStatusPendingReview && b.ReviewDeadline != nil && b.ReviewDeadline.Before(now) {
			cp := b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewDeadline.Before(*out[j].ReviewDeadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Disputes
// ---------------------------------------------------------------------------

type DisputeStore struct{ db *DB }

func (s *DisputeStore) Create(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.activeDispute(d.BookingID); ok {
		return models.ErrAlreadyDisputed
	}
	s.db.data.disputes[d.ID] = *d
	return nil
}

func (s *DisputeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.data.disputes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &d, nil
}

func (s *DisputeStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return s.GetByID(ctx, id)
}

func (s *DisputeStore) GetActiveByBooking(_ context.Context, _ pgx.Tx, bookingID uuid.UUID) (*models.Dispute, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.activeDispute(bookingID)
	if !ok {
		return nil, models.ErrNotFound
	}
	return &d, nil
}

func (s *DisputeStore) Update(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("UpdateDispute", d.ID); err != nil {
		return err
	}
	s.db.data.disputes[d.ID] = *d
	return nil
}

func (db *DB) activeDispute(bookingID uuid.UUID) (models.Dispute, bool) {
	for _, d := range db.data.disputes {
		if d.BookingID == bookingID && d.IsActive() {
			return d, true
		}
	}
	return models.Dispute{}, false
}

// ---------------------------------------------------------------------------
// Compliance
// ---------------------------------------------------------------------------

type ComplianceStore struct{ db *DB }

func (s *ComplianceStore) InsertWorkedDay(_ context.Context, _ pgx.Tx, businessID, workerID uuid.UUID, date time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("InsertWorkedDay", workerID); err != nil {
		return false, err
	}
	k := dayKey{businessID, workerID, date.Format("2006-01-02")}
	if s.db.data.workedDays[k] {
		return false, nil
	}
	s.db.data.workedDays[k] = true
	return true, nil
}

func (s *ComplianceStore) IncrementDaysWorked(_ context.Context, _ pgx.Tx, businessID, workerID uuid.UUID, month time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.data.tracking[monthKey{businessID, workerID, month.Format("2006-01")}]++
	return nil
}

func (s *ComplianceStore) GetDaysWorked(_ context.Context, businessID, workerID uuid.UUID, month time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.data.tracking[monthKey{businessID, workerID, month.Format("2006-01")}], nil
}

func (s *ComplianceStore) ListCandidates(_ context.Context, businessID uuid.UUID, month time.Time) ([]models.WorkerCapacity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.WorkerCapacity, 0, len(s.db.verified))
	for _, id := range s.db.verified {
		days := s.db.data.tracking[monthKey{businessID, id, month.Format("2006-01")}]
		out = append(out, models.WorkerCapacity{WorkerID: id, DaysWorked: days, Level: models.LevelFor(days)})
	}
	return out, nil
}
