package compliance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dayshift/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists worked days and the per-month counters derived from them.
type Store interface {
	// InsertWorkedDay records the date and reports whether it was new.
	InsertWorkedDay(ctx context.Context, tx pgx.Tx, businessID, workerID uuid.UUID, date time.Time) (bool, error)
	IncrementDaysWorked(ctx context.Context, tx pgx.Tx, businessID, workerID uuid.UUID, month time.Time) error
	GetDaysWorked(ctx context.Context, businessID, workerID uuid.UUID, month time.Time) (int, error)
	// ListCandidates returns KYC-verified workers with their count for the
	// business and month (zero when they have not worked there).
	ListCandidates(ctx context.Context, businessID uuid.UUID, month time.Time) ([]models.WorkerCapacity, error)
}

// Service tracks days worked per (business, worker, month) and gates acceptance.
type Service struct {
	Pool     TxBeginner
	Store    Store
	Location *time.Location
	Now      func() time.Time
}

// NewService returns a compliance Service counting months in loc.
func NewService(pool TxBeginner, store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{Pool: pool, Store: store, Location: loc, Now: time.Now}
}

// RecordWorkedDay counts date once for the pair, inside the caller's transaction.
// Repeated calls for the same date are no-ops. date is a calendar date: its
// year, month and day are taken as-is and placed in the tracker's timezone.
func (s *Service) RecordWorkedDay(ctx context.Context, tx pgx.Tx, businessID, workerID uuid.UUID, date time.Time) (bool, error) {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.Location)
	inserted, err := s.Store.InsertWorkedDay(ctx, tx, businessID, workerID, day)
	if err != nil {
		return false, fmt.Errorf("insert worked day: %w", err)
	}
	if !inserted {
		return false, nil
	}
	if err := s.Store.IncrementDaysWorked(ctx, tx, businessID, workerID, models.MonthOf(day)); err != nil {
		return false, fmt.Errorf("increment days worked: %w", err)
	}
	return true, nil
}

// Record runs RecordWorkedDay in its own transaction.
func (s *Service) Record(ctx context.Context, businessID, workerID uuid.UUID, date time.Time) (bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	inserted, err := s.RecordWorkedDay(ctx, tx, businessID, workerID, date)
	if err != nil {
		return false, err
	}
	return inserted, tx.Commit(ctx)
}

// GetStatus returns the pair's count and level for the current month.
func (s *Service) GetStatus(ctx context.Context, businessID, workerID uuid.UUID) (models.ComplianceStatus, error) {
	return s.StatusForMonth(ctx, businessID, workerID, s.CurrentMonth())
}

func (s *Service) StatusForMonth(ctx context.Context, businessID, workerID uuid.UUID, month time.Time) (models.ComplianceStatus, error) {
	month = s.monthOf(month)
	days, err := s.Store.GetDaysWorked(ctx, businessID, workerID, month)
	if err != nil {
		return models.ComplianceStatus{}, err
	}
	return models.ComplianceStatus{
		BusinessID: businessID,
		WorkerID:   workerID,
		Month:      month,
		DaysWorked: days,
		Level:      models.LevelFor(days),
	}, nil
}

// GetAlternativeWorkers returns up to limit workers not blocked for the
// business in month, freshest capacity first. Ties break on worker id so the
// order is deterministic. limit <= 0 returns every candidate.
func (s *Service) GetAlternativeWorkers(ctx context.Context, businessID uuid.UUID, month time.Time, limit int, exclude ...uuid.UUID) ([]models.WorkerCapacity, error) {
	candidates, err := s.Store.ListCandidates(ctx, businessID, s.monthOf(month))
	if err != nil {
		return nil, err
	}
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]models.WorkerCapacity, 0, len(candidates))
	for _, c := range candidates {
		c.Level = models.LevelFor(c.DaysWorked)
		if skip[c.WorkerID] || c.Level == models.ComplianceBlocked {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysWorked != out[j].DaysWorked {
			return out[i].DaysWorked < out[j].DaysWorked
		}
		return out[i].WorkerID.String() < out[j].WorkerID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CurrentMonth is the first day of the current month in the tracker's timezone.
func (s *Service) CurrentMonth() time.Time {
	return models.MonthOf(s.Now().In(s.Location))
}

func (s *Service) monthOf(t time.Time) time.Time {
	return models.MonthOf(t.In(s.Location))
}
