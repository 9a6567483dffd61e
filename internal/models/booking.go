package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking status enums.
const (
	BookingStatusPending    = "pending"
	BookingStatusAccepted   = "accepted"
	BookingStatusRejected   = "rejected"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

// Payment status enums. released and cancelled are terminal.
const (
	PaymentStatusNone          = "none"
	PaymentStatusPendingReview = "pending_review"
	PaymentStatusAvailable     = "available"
	PaymentStatusReleased      = "released"
	PaymentStatusDisputed      = "disputed"
	PaymentStatusCancelled     = "cancelled"
)

// DefaultReviewWindow is how long a completed booking waits before its payment
// can be released automatically.
const DefaultReviewWindow = 72 * time.Hour

type Booking struct {
	ID             uuid.UUID  `json:"id"`
	WorkerID       uuid.UUID  `json:"worker_id"`
	BusinessID     uuid.UUID  `json:"business_id"`
	JobID          uuid.UUID  `json:"job_id"`
	Status         string     `json:"status"`
	PaymentStatus  string     `json:"payment_status"`
	AgreedRate     int64      `json:"agreed_rate"`
	FinalPrice     int64      `json:"final_price"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        time.Time  `json:"end_date"`
	ReviewDeadline *time.Time `json:"review_deadline,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// bookingTransitions lists the allowed status moves. completed is terminal for
// status; its payment sub-state is handled separately.
var bookingTransitions = map[string][]string{
	BookingStatusPending:    {BookingStatusAccepted, BookingStatusRejected, BookingStatusCancelled},
	BookingStatusAccepted:   {BookingStatusInProgress, BookingStatusCancelled},
	BookingStatusInProgress: {BookingStatusCompleted, BookingStatusCancelled},
}

// paymentTransitions lists the allowed payment_status moves.
var paymentTransitions = map[string][]string{
	PaymentStatusNone:          {PaymentStatusPendingReview},
	PaymentStatusPendingReview: {PaymentStatusAvailable, PaymentStatusDisputed, PaymentStatusCancelled},
	PaymentStatusAvailable:     {PaymentStatusReleased, PaymentStatusDisputed},
	PaymentStatusDisputed:      {PaymentStatusAvailable, PaymentStatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	return contains(bookingTransitions[from], to)
}

// CanTransitionPayment reports whether payment_status may move from one value to another.
func CanTransitionPayment(from, to string) bool {
	return contains(paymentTransitions[from], to)
}

// WorkedDays returns the inclusive number of calendar days between StartDate and EndDate.
func (b *Booking) WorkedDays() int64 {
	sy, sm, sd := b.StartDate.Date()
	ey, em, ed := b.EndDate.Date()
	start := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		return 1
	}
	return int64(end.Sub(start)/(24*time.Hour)) + 1
}

// WorkDates returns each calendar date the booking covers.
func (b *Booking) WorkDates() []time.Time {
	n := b.WorkedDays()
	start := truncateDay(b.StartDate)
	out := make([]time.Time, 0, n)
	for i := int64(0); i < n; i++ {
		out = append(out, start.AddDate(0, 0, int(i)))
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
