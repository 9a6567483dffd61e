package compliance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dayshift/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) InsertWorkedDay(ctx context.Context, tx pgx.Tx, businessID, workerID uuid.UUID, date time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO compliance_worked_days (business_id, worker_id, work_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, worker_id, work_date) DO NOTHING
	`, businessID, workerID, date)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) IncrementDaysWorked(ctx context.Context, tx pgx.Tx, businessID, workerID uuid.UUID, month time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO compliance_tracking (business_id, worker_id, month, days_worked)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (business_id, worker_id, month)
		DO UPDATE SET days_worked = compliance_tracking.days_worked + 1, updated_at = now()
	`, businessID, workerID, month)
	return err
}

func (r *Repository) GetDaysWorked(ctx context.Context, businessID, workerID uuid.UUID, month time.Time) (int, error) {
	var days int
	err := r.pool.QueryRow(ctx, `
		SELECT days_worked FROM compliance_tracking
		WHERE business_id = $1 AND worker_id = $2 AND month = $3
	`, businessID, workerID, month).Scan(&days)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return days, err
}

func (r *Repository) ListCandidates(ctx context.Context, businessID uuid.UUID, month time.Time) ([]models.WorkerCapacity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT wp.worker_id, COALESCE(ct.days_worked, 0)
		FROM worker_profiles wp
		LEFT JOIN compliance_tracking ct
			ON ct.worker_id = wp.worker_id AND ct.business_id = $1 AND ct.month = $2
		WHERE wp.kyc_status = 'verified' AND wp.is_active
	`, businessID, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.WorkerCapacity
	for rows.Next() {
		var c models.WorkerCapacity
		if err := rows.Scan(&c.WorkerID, &c.DaysWorked); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
