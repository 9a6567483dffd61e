package disputes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dayshift/backend/internal/models"
)

const disputeColumns = `id, booking_id, raised_by, reason, status, prior_payment_status, resolution, admin_notes, created_at, resolved_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.BookingID, &d.RaisedBy, &d.Reason, &d.Status, &d.PriorPaymentStatus, &d.Resolution, &d.AdminNotes, &d.CreatedAt, &d.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create relies on the one-active-dispute-per-booking unique index as a backstop.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO disputes (id, booking_id, raised_by, reason, status, prior_payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, d.ID, d.BookingID, d.RaisedBy, d.Reason, d.Status, d.PriorPaymentStatus).Scan(&d.CreatedAt)
	return createError(err)
}

func createError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "disputes_one_active_per_booking" {
		return models.ErrAlreadyDisputed
	}
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
}

func (r *Repository) GetActiveByBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE booking_id = $1 AND status IN ('pending', 'investigating')
	`, bookingID))
}

func (r *Repository) Update(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	_, err := tx.Exec(ctx, `
		UPDATE disputes SET status = $2, resolution = $3, admin_notes = $4, resolved_at = $5
		WHERE id = $1
	`, d.ID, d.Status, d.Resolution, d.AdminNotes, d.ResolvedAt)
	return err
}
