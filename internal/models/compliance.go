package models

import (
	"time"

	"github.com/google/uuid"
)

// Monthly work-day thresholds per (worker, business) pair.
const (
	ComplianceWarningDays = 15
	ComplianceBlockedDays = 21
)

type ComplianceLevel string

const (
	ComplianceOK      ComplianceLevel = "OK"
	ComplianceWarning ComplianceLevel = "WARNING"
	ComplianceBlocked ComplianceLevel = "BLOCKED"
)

// LevelFor maps a month's worked-day count to its compliance level.
func LevelFor(daysWorked int) ComplianceLevel {
	switch {
	case daysWorked >= ComplianceBlockedDays:
		return ComplianceBlocked
	case daysWorked >= ComplianceWarningDays:
		return ComplianceWarning
	default:
		return ComplianceOK
	}
}

type ComplianceTracking struct {
	BusinessID uuid.UUID `json:"business_id"`
	WorkerID   uuid.UUID `json:"worker_id"`
	Month      time.Time `json:"month"`
	DaysWorked int       `json:"days_worked"`
}

type ComplianceStatus struct {
	BusinessID uuid.UUID       `json:"business_id"`
	WorkerID   uuid.UUID       `json:"worker_id"`
	Month      time.Time       `json:"month"`
	DaysWorked int             `json:"days_worked"`
	Level      ComplianceLevel `json:"level"`
}

// WorkerCapacity is a candidate for substitution with its current month count.
type WorkerCapacity struct {
	WorkerID   uuid.UUID       `json:"worker_id"`
	DaysWorked int             `json:"days_worked"`
	Level      ComplianceLevel `json:"level"`
}

// MonthOf returns the first day of the month containing t, in t's location.
func MonthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
