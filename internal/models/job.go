package models

import (
	"time"

	"github.com/google/uuid"
)

// Job is the posting a worker applies to. Jobs are managed elsewhere; the
// booking engine only reads them.
type Job struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Title      string    `json:"title"`
	DailyRate  int64     `json:"daily_rate"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}
