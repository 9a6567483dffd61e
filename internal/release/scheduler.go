package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dayshift/backend/internal/metrics"
	"github.com/dayshift/backend/internal/models"
)

const (
	DefaultBatchSize   = 200
	DefaultItemTimeout = 10 * time.Second
)

// Bookings is what the scheduler needs from the booking state machine.
type Bookings interface {
	ListDuePayments(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ReleasePayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
}

type Failure struct {
	BookingID uuid.UUID `json:"booking_id"`
	Reason    string    `json:"reason"`
}

// Result summarizes one run. Skipped counts bookings another run or a dispute
// got to first.
type Result struct {
	Released int       `json:"released"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
}

// Scheduler releases payments whose review window has elapsed. Each booking is
// released in its own transaction, so one failure never affects the others.
type Scheduler struct {
	Bookings    Bookings
	Logger      *slog.Logger
	Now         func() time.Time
	BatchSize   int
	ItemTimeout time.Duration
}

func NewScheduler(bookings Bookings, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Bookings:    bookings,
		Logger:      logger,
		Now:         time.Now,
		BatchSize:   DefaultBatchSize,
		ItemTimeout: DefaultItemTimeout,
	}
}

// ReleaseDuePayments processes up to BatchSize due bookings, oldest deadline
// first. It returns an error only when the due list cannot be read.
func (s *Scheduler) ReleaseDuePayments(ctx context.Context) (Result, error) {
	var res Result
	due, err := s.Bookings.ListDuePayments(ctx, s.Now(), s.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list due payments: %w", err)
	}

	for _, b := range due {
		if ctx.Err() != nil {
			break
		}
		err := s.releaseOne(ctx, b.ID)
		switch {
		case err == nil:
			res.Released++
		case errors.Is(err, models.ErrWrongState), errors.Is(err, models.ErrAlreadyDisputed), errors.Is(err, models.ErrNotYetDue):
			res.Skipped++
			s.Logger.Debug("release skipped", "booking_id", b.ID, "reason", err.Error())
		default:
			res.Failed++
			res.Failures = append(res.Failures, Failure{BookingID: b.ID, Reason: err.Error()})
			s.Logger.Error("release failed", "booking_id", b.ID, "error", err)
		}
	}

	metrics.ObserveReleaseRun(res.Released, res.Failed, res.Skipped)
	s.Logger.Info("release run finished",
		"due", len(due), "released", res.Released, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// releaseOne bounds a single release by ItemTimeout. A release that ignores
// its context is abandoned and reported as failed.
func (s *Scheduler) releaseOne(ctx context.Context, bookingID uuid.UUID) error {
	timeout := s.ItemTimeout
	if timeout <= 0 {
		timeout = DefaultItemTimeout
	}
	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.Bookings.ReleasePayment(itemCtx, bookingID)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-itemCtx.Done():
		return fmt.Errorf("release timed out after %s: %w", timeout, itemCtx.Err())
	}
}
