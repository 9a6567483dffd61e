package disputes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dayshift/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store interface {
	Create(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	// GetActiveByBooking returns models.ErrNotFound when the booking has no active dispute.
	GetActiveByBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Dispute, error)
	Update(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
}

// Bookings is the part of the booking state machine a resolution re-enters.
type Bookings interface {
	LockBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Booking, error)
	SaveBooking(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	ReleaseHeldFunds(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	ReverseHeldFunds(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	ClawBackFunds(ctx context.Context, tx pgx.Tx, b *models.Booking) error
}

type EventEmitter interface {
	Emit(ctx context.Context, ev models.Event)
}

// Service freezes payment release while a booking is contested.
type Service struct {
	Pool     TxBeginner
	Store    Store
	Bookings Bookings
	Events   EventEmitter
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewService(pool TxBeginner, store Store, bookings Bookings, events EventEmitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Pool: pool, Store: store, Bookings: bookings, Events: events, Logger: logger, Now: time.Now}
}

// RaiseDispute contests a booking whose payment is in review or available.
func (s *Service) RaiseDispute(ctx context.Context, bookingID, raisedBy uuid.UUID, reason string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: dispute reason is required", models.ErrInvalidState)
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := s.Bookings.LockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if raisedBy != b.WorkerID && raisedBy != b.BusinessID {
		return nil, models.ErrNotFound
	}
	if b.PaymentStatus == models.PaymentStatusDisputed {
		return nil, models.ErrAlreadyDisputed
	}
	if _, err := s.Store.GetActiveByBooking(ctx, tx, bookingID); err == nil {
		return nil, models.ErrAlreadyDisputed
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if b.PaymentStatus != models.PaymentStatusPendingReview && b.PaymentStatus != models.PaymentStatusAvailable {
		return nil, fmt.Errorf("%w: cannot dispute payment in status %s", models.ErrInvalidState, b.PaymentStatus)
	}

	d := &models.Dispute{
		ID:                 uuid.New(),
		BookingID:          bookingID,
		RaisedBy:           raisedBy,
		Reason:             reason,
		Status:             models.DisputeStatusPending,
		PriorPaymentStatus: b.PaymentStatus,
		CreatedAt:          s.Now(),
	}
	b.PaymentStatus = models.PaymentStatusDisputed
	if err := s.Bookings.SaveBooking(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := s.Store.Create(ctx, tx, d); err != nil {
		return nil, fmt.Errorf("create dispute: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	other := b.BusinessID
	if raisedBy == b.BusinessID {
		other = b.WorkerID
	}
	s.emit(ctx, disputeEvent(models.EventDisputeRaised, b, other, "Payment disputed", "A dispute was raised and the payment is on hold"))
	return d, nil
}

// MarkInvestigating moves a pending dispute under investigation.
func (s *Service) MarkInvestigating(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	d, err := s.Store.GetByIDForUpdate(ctx, tx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DisputeStatusPending {
		return nil, fmt.Errorf("%w: dispute is %s", models.ErrInvalidState, d.Status)
	}
	d.Status = models.DisputeStatusInvestigating
	if err := s.Store.Update(ctx, tx, d); err != nil {
		return nil, err
	}
	return d, tx.Commit(ctx)
}

// ResolveDispute closes an active dispute. release makes the funds available
// without waiting for the review deadline; cancel reverses them.
func (s *Service) ResolveDispute(ctx context.Context, disputeID uuid.UUID, outcome, adminNotes string) (*models.Dispute, error) {
	return s.close(ctx, disputeID, models.DisputeStatusResolved, outcome, adminNotes)
}

// RejectDispute dismisses the dispute; the payment proceeds as if released.
func (s *Service) RejectDispute(ctx context.Context, disputeID uuid.UUID, adminNotes string) (*models.Dispute, error) {
	return s.close(ctx, disputeID, models.DisputeStatusRejected, models.DisputeOutcomeRelease, adminNotes)
}

func (s *Service) GetDispute(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	return s.Store.GetByID(ctx, disputeID)
}

func (s *Service) close(ctx context.Context, disputeID uuid.UUID, status, outcome, adminNotes string) (*models.Dispute, error) {
	if outcome != models.DisputeOutcomeRelease && outcome != models.DisputeOutcomeCancel {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedOutcome, outcome)
	}
	// Booking rows are always locked before dispute rows.
	existing, err := s.Store.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := s.Bookings.LockBooking(ctx, tx, existing.BookingID)
	if err != nil {
		return nil, err
	}
	d, err := s.Store.GetByIDForUpdate(ctx, tx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.IsActive() {
		return nil, fmt.Errorf("%w: dispute already %s", models.ErrInvalidState, d.Status)
	}
	if b.PaymentStatus != models.PaymentStatusDisputed {
		return nil, fmt.Errorf("%w: booking payment is %s, not disputed", models.ErrInvalidState, b.PaymentStatus)
	}

	switch {
	case outcome == models.DisputeOutcomeRelease && d.PriorPaymentStatus == models.PaymentStatusPendingReview:
		err = s.Bookings.ReleaseHeldFunds(ctx, tx, b)
	case outcome == models.DisputeOutcomeRelease:
		b.PaymentStatus = models.PaymentStatusAvailable
	case d.PriorPaymentStatus == models.PaymentStatusPendingReview:
		err = s.Bookings.ReverseHeldFunds(ctx, tx, b)
	default:
		err = s.Bookings.ClawBackFunds(ctx, tx, b)
	}
	if err != nil {
		return nil, fmt.Errorf("apply %s outcome: %w", outcome, err)
	}
	if err := s.Bookings.SaveBooking(ctx, tx, b); err != nil {
		return nil, err
	}

	now := s.Now()
	d.Status = status
	d.Resolution = &outcome
	if adminNotes != "" {
		d.AdminNotes = &adminNotes
	}
	d.ResolvedAt = &now
	if err := s.Store.Update(ctx, tx, d); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.Logger.Info("dispute closed", "dispute_id", d.ID, "booking_id", b.ID, "status", status, "outcome", outcome)
	body := "The dispute was closed and the payment was cancelled"
	if outcome == models.DisputeOutcomeRelease {
		body = "The dispute was closed and the payment is available"
	}
	s.emit(ctx, disputeEvent(models.EventDisputeResolved, b, b.WorkerID, "Dispute closed", body))
	s.emit(ctx, disputeEvent(models.EventDisputeResolved, b, b.BusinessID, "Dispute closed", body))
	return d, nil
}

func (s *Service) emit(ctx context.Context, ev models.Event) {
	if s.Events == nil {
		return
	}
	s.Events.Emit(ctx, ev)
}

func disputeEvent(eventType string, b *models.Booking, userID uuid.UUID, title, body string) models.Event {
	return models.Event{
		Type:      eventType,
		BookingID: b.ID,
		UserID:    userID,
		Title:     title,
		Body:      body,
		DeepLink:  "/bookings/" + b.ID.String() + "/dispute",
	}
}
