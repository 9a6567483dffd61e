package models

import "github.com/google/uuid"

// Domain event types emitted after a booking transaction commits.
const (
	EventApplicationReceived = "application_received"
	EventApplicationAccepted = "application_accepted"
	EventApplicationRejected = "application_rejected"
	EventBookingCancelled    = "booking_cancelled"
	EventWorkStarted         = "work_started"
	EventBookingCompleted    = "booking_completed"
	EventPaymentAvailable    = "payment_available"
	EventPaymentReleased     = "payment_released"
	EventDisputeRaised       = "dispute_raised"
	EventDisputeResolved     = "dispute_resolved"
)

// Event is a notification-bound domain event addressed to one user.
type Event struct {
	Type      string    `json:"type"`
	BookingID uuid.UUID `json:"booking_id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	DeepLink  string    `json:"deep_link"`
}
