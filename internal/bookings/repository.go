package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dayshift/backend/internal/models"
)

const bookingColumns = `id, worker_id, business_id, job_id, status, payment_status, agreed_rate, final_price,
	start_date, end_date, review_deadline, started_at, completed_at, cancelled_at, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.WorkerID, &b.BusinessID, &b.JobID, &b.Status, &b.PaymentStatus, &b.AgreedRate, &b.FinalPrice,
		&b.StartDate, &b.EndDate, &b.ReviewDeadline, &b.StartedAt, &b.CompletedAt, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, title, daily_rate, start_date, end_date FROM jobs WHERE id = $1
	`, jobID).Scan(&j.ID, &j.BusinessID, &j.Title, &j.DailyRate, &j.StartDate, &j.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a booking. The bookings_one_active_application index rejects
// a second active application for the same worker and job.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, worker_id, business_id, job_id, status, payment_status, agreed_rate, final_price, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, b.ID, b.WorkerID, b.BusinessID, b.JobID, b.Status, b.PaymentStatus, b.AgreedRate, b.FinalPrice, b.StartDate, b.EndDate).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	return createError(err, b)
}

func createError(err error, b *models.Booking) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "bookings_one_active_application" {
		return fmt.Errorf("%w: worker %s already applied to job %s", models.ErrInvalidState, b.WorkerID, b.JobID)
	}
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

// GetByIDForUpdate locks the booking row. Call within a transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
}

func (r *Repository) Update(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, payment_status = $3, final_price = $4, review_deadline = $5,
			started_at = $6, completed_at = $7, cancelled_at = $8, updated_at = $9
		WHERE id = $1
	`, b.ID, b.Status, b.PaymentStatus, b.FinalPrice, b.ReviewDeadline, b.StartedAt, b.CompletedAt, b.CancelledAt, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) HasActiveApplication(ctx context.Context, tx pgx.Tx, workerID, jobID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE worker_id = $1 AND job_id = $2 AND status IN ('pending', 'accepted', 'in_progress')
		)
	`, workerID, jobID).Scan(&exists)
	return exists, err
}

func (r *Repository) HasActiveDispute(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM disputes WHERE booking_id = $1 AND status IN ('pending', 'investigating')
		)
	`, bookingID).Scan(&exists)
	return exists, err
}

// ListDuePayments uses the partial index on review_deadline.
func (r *Repository) ListDuePayments(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE payment_status = 'pending_review' AND review_deadline < $1
		ORDER BY review_deadline ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}
