package disputes

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dayshift/backend/internal/models"
)

func TestCreateErrorMapsOneActiveDisputeIndex(t *testing.T) {
	err := createError(&pgconn.PgError{Code: "23505", ConstraintName: "disputes_one_active_per_booking"})
	assert.ErrorIs(t, err, models.ErrAlreadyDisputed)

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "disputes_booking_id_fkey"}
	assert.Same(t, fk, createError(fk))

	boom := errors.New("connection reset")
	assert.Equal(t, boom, createError(boom))
	assert.NoError(t, createError(nil))
}
