package bookings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dayshift/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the booking persistence used by the state machine.
type Store interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	Create(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error)
	Update(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	HasActiveApplication(ctx context.Context, tx pgx.Tx, workerID, jobID uuid.UUID) (bool, error)
	HasActiveDispute(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (bool, error)
	// ListDuePayments returns pending_review bookings whose deadline is before
	// now, oldest deadline first.
	ListDuePayments(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
}

// Ledger is the subset of the wallet ledger the state machine moves funds with.
type Ledger interface {
	GetOrCreateWallet(ctx context.Context, tx pgx.Tx, owner models.WalletOwner, currency string) (*models.Wallet, error)
	CreditPending(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID uuid.UUID) (*models.Wallet, error)
	Release(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID uuid.UUID, description string) (*models.Wallet, error)
	CancelPending(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID uuid.UUID) (*models.Wallet, error)
	DebitAvailable(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, bookingID *uuid.UUID, description string) (*models.Wallet, error)
}

// Compliance gates acceptance and records worked days.
type Compliance interface {
	GetStatus(ctx context.Context, businessID, workerID uuid.UUID) (models.ComplianceStatus, error)
	GetAlternativeWorkers(ctx context.Context, businessID uuid.UUID, month time.Time, limit int, exclude ...uuid.UUID) ([]models.WorkerCapacity, error)
	RecordWorkedDay(ctx context.Context, tx pgx.Tx, businessID, workerID uuid.UUID, date time.Time) (bool, error)
}

// EventEmitter receives domain events once the transaction that produced them
// has committed. Delivery problems are the emitter's concern.
type EventEmitter interface {
	Emit(ctx context.Context, ev models.Event)
}

// DefaultAlternativesLimit is how many substitutes accompany a compliance rejection.
const DefaultAlternativesLimit = 5

// Service drives bookings through their status and payment state machines.
type Service struct {
	Pool              TxBeginner
	Store             Store
	Ledger            Ledger
	Compliance        Compliance
	Events            EventEmitter
	Logger            *slog.Logger
	Now               func() time.Time
	ReviewWindow      time.Duration
	Currency          string
	AlternativesLimit int
}

// NewService returns a booking Service with the default review window.
func NewService(pool TxBeginner, store Store, ledger Ledger, compliance Compliance, events EventEmitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Pool:              pool,
		Store:             store,
		Ledger:            ledger,
		Compliance:        compliance,
		Events:            events,
		Logger:            logger,
		Now:               time.Now,
		ReviewWindow:      models.DefaultReviewWindow,
		Currency:          models.DefaultCurrency,
		AlternativesLimit: DefaultAlternativesLimit,
	}
}

// ApplyForJob creates a pending booking. Compliance is checked at acceptance, not here.
func (s *Service) ApplyForJob(ctx context.Context, workerID, jobID uuid.UUID) (*models.Booking, error) {
	job, err := s.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.DailyRate <= 0 {
		return nil, fmt.Errorf("%w: job %s has no daily rate", models.ErrInvalidState, jobID)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	exists, err := s.Store.HasActiveApplication(ctx, tx, workerID, jobID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: worker already applied to job %s", models.ErrInvalidState, jobID)
	}
	now := s.Now()
	b := &models.Booking{
		ID:            uuid.New(),
		WorkerID:      workerID,
		BusinessID:    job.BusinessID,
		JobID:         jobID,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusNone,
		AgreedRate:    job.DailyRate,
		StartDate:     job.StartDate,
		EndDate:       job.EndDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Create(ctx, tx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.emit(ctx, event(models.EventApplicationReceived, b, b.BusinessID, "New application", "A worker applied for "+job.Title))
	return b, nil
}

// AcceptApplication accepts a pending booking unless the worker has reached
// the monthly cap with this business. A blocked acceptance returns a
// *models.ComplianceError listing alternative workers.
func (s *Service) AcceptApplication(ctx context.Context, bookingID, businessID uuid.UUID) (*models.Booking, error) {
	b, err := s.Store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.BusinessID != businessID {
		return nil, models.ErrNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, fmt.Errorf("%w: cannot accept booking in status %s", models.ErrInvalidState, b.Status)
	}

	status, err := s.Compliance.GetStatus(ctx, b.BusinessID, b.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("compliance status: %w", err)
	}
	if status.Level == models.ComplianceBlocked {
		alts, err := s.Compliance.GetAlternativeWorkers(ctx, b.BusinessID, status.Month, s.AlternativesLimit, b.WorkerID)
		if err != nil {
			s.Logger.Warn("alternative workers lookup failed", "booking_id", b.ID, "error", err)
		}
		return nil, &models.ComplianceError{Status: status, Alternatives: alts}
	}
	if status.Level == models.ComplianceWarning {
		s.Logger.Info("accepting worker near monthly cap",
			"booking_id", b.ID, "worker_id", b.WorkerID, "days_worked", status.DaysWorked)
	}

	return s.transition(ctx, bookingID, func(tx pgx.Tx, b *models.Booking) ([]models.Event, error) {
		if err := setStatus(b, models.BookingStatusAccepted); err != nil {
			return nil, err
		}
		return []models.Event{event(models.EventApplicationAccepted, b, b.WorkerID, "Application accepted", "Your application was accepted")}, nil
	})
}

func (s *Service) RejectApplication(ctx context.Context, bookingID, businessID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, bookingID, func(tx pgx.Tx, b *models.Booking) ([]models.Event, error) {
		if b.BusinessID != businessID {
			return nil, models.ErrNotFound
		}
		if err := setStatus(b, models.BookingStatusRejected); err != nil {
			return nil, err
		}
		return []models.Event{event(models.EventApplicationRejected, b, b.WorkerID, "Application rejected", "Your application was not accepted")}, nil
	})
}

// CancelApplication cancels a booking on behalf of its worker or business.
// A completed booking still in review can be cancelled too; its held funds
// are reversed in the same transaction.
func (s *Service) CancelApplication(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, bookingID, func(tx pgx.Tx, b *models.Booking) ([]models.Event, error) {
		if actorID != b.WorkerID && actorID != b.BusinessID {
			return nil, models.ErrNotFound
		}
		if b.Status == models.BookingStatusCompleted {
			if b.PaymentStatus != models.PaymentStatusPendingReview {
				return nil, fmt.Errorf("%w: cannot cancel completed booking with payment %s", models.ErrInvalidState, b.PaymentStatus)
			}
			if err := s.ReverseHeldFunds(ctx, tx, b); err != nil {
				return nil, err
			}
			b.Status = models.BookingStatusCancelled
		} else if err := setStatus(b, models.BookingStatusCancelled); err != nil {
			return nil, err
		}
		now := s.Now()
		b.CancelledAt = &now
		notify := b.BusinessID
		if actorID == b.BusinessID {
			notify = b.WorkerID
		}
		return []models.Event{event(models.EventBookingCancelled, b, notify, "Booking cancelled", "A booking was cancelled")}, nil
	})
}

// StartWork checks the worker in and records every covered date against the
// monthly cap.
func (s *Service) StartWork(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, bookingID, func(tx pgx.Tx, b *models.Booking) ([]models.Event, error) {
		if err := setStatus(b, models.BookingStatusInProgress); err != nil {
			return nil, err
		}
		now := s.Now()
		b.StartedAt = &now
		for _, day := range b.WorkDates() {
			if _, err := s.Compliance.RecordWorkedDay(ctx, tx, b.BusinessID, b.WorkerID, day); err != nil {
				return nil, err
			}
		}
		return []models.Event{event(models.EventWorkStarted, b, b.BusinessID, "Work started", "The worker has checked in")}, nil
	})
}

// Checkout completes the booking, fixes final_price and holds it in the
// worker's pending balance until the review deadline.
func (s *Service) Checkout(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, bookingID, func(tx pgx.Tx, b *models.Booking) ([]models.Event, error) {
		if err := setStatus(b, models.BookingStatusCompleted); err != nil {
			return nil, err
		}
		if !models.CanTransitionPayment(b.PaymentStatus, models.PaymentStatusPendingReview) {
			return nil, fmt.Errorf("%w: payment already %s", models.ErrInvalidState, b.PaymentStatus)
		}
		now := s.Now()
		deadline := now.Add(s.ReviewWindow)
		b.FinalPrice = b.AgreedRate * b.WorkedDays()
		b.PaymentStatus = models.PaymentStatusPendingReview
		b.ReviewDeadline = &deadline
		b.CompletedAt = &now

		w, err := s.Ledger.GetOrCreateWallet(ctx, tx, models.WorkerOwner(b.WorkerID), s.Currency)
		if err != nil {
			return nil, err
		}
		if _, err := s.Ledger.CreditPending(ctx, tx, w.ID, b.FinalPrice, b.ID); err != nil {
			return nil, fmt.Errorf("credit pending: %w", err)
		}
		return []models.Event{
			event(models.EventBookingCompleted, b, b.WorkerID, "Job completed", "Your payment is in review"),
			event(models.EventBookingCompleted, b, b.BusinessID, "Job completed", "Review the work before the payment is released"),
		}, nil
	})
}

// ReleasePayment moves a reviewed booking's funds to the worker's available
// balance. It returns models.ErrNotYetDue, models.ErrAlreadyDisputed or
// models.ErrWrongState when the booking is not eligible.
func (s *Service) ReleasePayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, bookingID, func(tx pgx.Tx, b *models.Booking) ([]models.Event, error) {
		if err := s.checkReleasable(ctx, tx, b); err != nil {
			return nil, err
		}
		if err := s.ReleaseHeldFunds(ctx, tx, b); err != nil {
			return nil, err
		}
		return []models.Event{event(models.EventPaymentAvailable, b, b.WorkerID, "Payment available", "Your earnings are ready to withdraw")}, nil
	})
}

// PayoutBooking settles an available booking payment out of the worker's wallet.
func (s *Service) PayoutBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, bookingID, func(tx pgx.Tx, b *models.Booking) ([]models.Event, error) {
		if b.PaymentStatus != models.PaymentStatusAvailable {
			return nil, fmt.Errorf("%w: payment is %s, not available", models.ErrInvalidState, b.PaymentStatus)
		}
		w, err := s.Ledger.GetOrCreateWallet(ctx, tx, models.WorkerOwner(b.WorkerID), s.Currency)
		if err != nil {
			return nil, err
		}
		if _, err := s.Ledger.DebitAvailable(ctx, tx, w.ID, b.FinalPrice, &b.ID, "booking payout"); err != nil {
			return nil, err
		}
		b.PaymentStatus = models.PaymentStatusReleased
		return []models.Event{event(models.EventPaymentReleased, b, b.WorkerID, "Payment sent", "Your earnings were paid out")}, nil
	})
}

func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.Store.GetByID(ctx, bookingID)
}

func (s *Service) ListDuePayments(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	return s.Store.ListDuePayments(ctx, now, limit)
}

// LockBooking reads the booking FOR UPDATE inside tx.
func (s *Service) LockBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Booking, error) {
	return s.Store.GetByIDForUpdate(ctx, tx, bookingID)
}

// SaveBooking writes a booking changed inside tx.
func (s *Service) SaveBooking(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	b.UpdatedAt = s.Now()
	return s.Store.Update(ctx, tx, b)
}

// ReleaseHeldFunds moves final_price from pending to available for a booking in
// review or under dispute. The review deadline is not checked here.
func (s *Service) ReleaseHeldFunds(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	if !models.CanTransitionPayment(b.PaymentStatus, models.PaymentStatusAvailable) {
		return fmt.Errorf("%w: cannot release payment in status %s", models.ErrInvalidState, b.PaymentStatus)
	}
	w, err := s.Ledger.GetOrCreateWallet(ctx, tx, models.WorkerOwner(b.WorkerID), s.Currency)
	if err != nil {
		return err
	}
	if _, err := s.Ledger.Release(ctx, tx, w.ID, b.FinalPrice, b.ID, "booking payment released"); err != nil {
		return err
	}
	b.PaymentStatus = models.PaymentStatusAvailable
	return nil
}

// ReverseHeldFunds returns a booking's pending funds and cancels its payment.
func (s *Service) ReverseHeldFunds(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	if !models.CanTransitionPayment(b.PaymentStatus, models.PaymentStatusCancelled) {
		return fmt.Errorf("%w: cannot cancel payment in status %s", models.ErrInvalidState, b.PaymentStatus)
	}
	w, err := s.Ledger.GetOrCreateWallet(ctx, tx, models.WorkerOwner(b.WorkerID), s.Currency)
	if err != nil {
		return err
	}
	if _, err := s.Ledger.CancelPending(ctx, tx, w.ID, b.FinalPrice, b.ID); err != nil {
		return err
	}
	b.PaymentStatus = models.PaymentStatusCancelled
	return nil
}

// ClawBackFunds debits an already released amount from the worker's
// available balance and cancels the payment.
func (s *Service) ClawBackFunds(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	if !models.CanTransitionPayment(b.PaymentStatus, models.PaymentStatusCancelled) {
		return fmt.Errorf("%w: cannot cancel payment in status %s", models.ErrInvalidState, b.PaymentStatus)
	}
	w, err := s.Ledger.GetOrCreateWallet(ctx, tx, models.WorkerOwner(b.WorkerID), s.Currency)
	if err != nil {
		return err
	}
	if _, err := s.Ledger.DebitAvailable(ctx, tx, w.ID, b.FinalPrice, &b.ID, "dispute clawback"); err != nil {
		return err
	}
	b.PaymentStatus = models.PaymentStatusCancelled
	return nil
}

func (s *Service) checkReleasable(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	if b.PaymentStatus == models.PaymentStatusDisputed {
		return models.ErrAlreadyDisputed
	}
	if b.PaymentStatus != models.PaymentStatusPendingReview {
		return models.ErrWrongState
	}
	disputed, err := s.Store.HasActiveDispute(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	if disputed {
		return models.ErrAlreadyDisputed
	}
	if b.ReviewDeadline == nil || s.Now().Before(*b.ReviewDeadline) {
		return models.ErrNotYetDue
	}
	return nil
}

// transition locks the booking, applies fn, saves and commits, then emits the
// returned events. Nothing is emitted if any step fails.
func (s *Service) transition(ctx context.Context, bookingID uuid.UUID, fn func(tx pgx.Tx, b *models.Booking) ([]models.Event, error)) (*models.Booking, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := s.Store.GetByIDForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	events, err := fn(tx, b)
	if err != nil {
		return nil, err
	}
	if err := s.SaveBooking(ctx, tx, b); err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	for _, ev := range events {
		s.emit(ctx, ev)
	}
	return b, nil
}

func (s *Service) emit(ctx context.Context, ev models.Event) {
	if s.Events == nil {
		return
	}
	s.Events.Emit(ctx, ev)
}

func setStatus(b *models.Booking, to string) error {
	if !models.CanTransition(b.Status, to) {
		return fmt.Errorf("%w: booking %s cannot move from %s to %s", models.ErrInvalidState, b.ID, b.Status, to)
	}
	b.Status = to
	return nil
}

func event(eventType string, b *models.Booking, userID uuid.UUID, title, body string) models.Event {
	return models.Event{
		Type:      eventType,
		BookingID: b.ID,
		UserID:    userID,
		Title:     title,
		Body:      body,
		DeepLink:  "/bookings/" + b.ID.String(),
	}
}
