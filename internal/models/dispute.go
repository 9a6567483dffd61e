package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute status enums. pending and investigating are active.
const (
	DisputeStatusPending       = "pending"
	DisputeStatusInvestigating = "investigating"
	DisputeStatusResolved      = "resolved"
	DisputeStatusRejected      = "rejected"
)

// Dispute resolution outcomes. Partial amounts are not supported.
const (
	DisputeOutcomeRelease = "release"
	DisputeOutcomeCancel  = "cancel"
	DisputeOutcomePartial = "partial"
)

type Dispute struct {
	ID                 uuid.UUID  `json:"id"`
	BookingID          uuid.UUID  `json:"booking_id"`
	RaisedBy           uuid.UUID  `json:"raised_by"`
	Reason             string     `json:"reason"`
	Status             string     `json:"status"`
	PriorPaymentStatus string     `json:"prior_payment_status"`
	Resolution         *string    `json:"resolution,omitempty"`
	AdminNotes         *string    `json:"admin_notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

// IsActive reports whether the dispute still freezes the booking's payment.
func (d *Dispute) IsActive() bool {
	return d.Status == DisputeStatusPending || d.Status == DisputeStatusInvestigating
}
