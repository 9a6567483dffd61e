package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayshift/backend/internal/memstore"
	"github.com/dayshift/backend/internal/models"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func newTracker(now time.Time) (*Service, *memstore.DB) {
	db := memstore.New()
	svc := NewService(db, db.Compliance(), jakarta)
	svc.Now = func() time.Time { return now }
	return svc, db
}

func TestLevelFor(t *testing.T) {
	cases := map[int]models.ComplianceLevel{
		0:  models.ComplianceOK,
		14: models.ComplianceOK,
		15: models.ComplianceWarning,
		20: models.ComplianceWarning,
		21: models.ComplianceBlocked,
		31: models.ComplianceBlocked,
	}
	for days, want := range cases {
		assert.Equal(t, want, models.LevelFor(days), "days=%d", days)
	}
}

// Scenario: the 21st recorded day in a month blocks the pair; the 15th warns.
func TestThresholdsAcrossAMonth(t *testing.T) {
	now := time.Date(2026, 3, 25, 12, 0, 0, 0, jakarta)
	svc, _ := newTracker(now)
	ctx := context.Background()
	business, worker := uuid.New(), uuid.New()

	for d := 1; d <= 14; d++ {
		_, err := svc.Record(ctx, business, worker, time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	}
	st, err := svc.GetStatus(ctx, business, worker)
	require.NoError(t, err)
	assert.Equal(t, 14, st.DaysWorked)
	assert.Equal(t, models.ComplianceOK, st.Level)

	_, err = svc.Record(ctx, business, worker, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	st, _ = svc.GetStatus(ctx, business, worker)
	assert.Equal(t, models.ComplianceWarning, st.Level)

	for d := 16; d <= 21; d++ {
		_, err := svc.Record(ctx, business, worker, time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	}
	st, _ = svc.GetStatus(ctx, business, worker)
	assert.Equal(t, 21, st.DaysWorked)
	assert.Equal(t, models.ComplianceBlocked, st.Level)

	// A different business is unaffected.
	other, err := svc.GetStatus(ctx, uuid.New(), worker)
	require.NoError(t, err)
	assert.Equal(t, 0, other.DaysWorked)
}

func TestRecordIsIdempotentPerDate(t *testing.T) {
	svc, _ := newTracker(time.Date(2026, 3, 10, 9, 0, 0, 0, jakarta))
	ctx := context.Background()
	business, worker := uuid.New(), uuid.New()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	inserted, err := svc.Record(ctx, business, worker, day)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = svc.Record(ctx, business, worker, day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.False(t, inserted, "same calendar date must not count twice")

	st, _ := svc.GetStatus(ctx, business, worker)
	assert.Equal(t, 1, st.DaysWorked)
}

func TestMonthBoundaryUsesTrackerTimezone(t *testing.T) {
	// 17:30 UTC on Mar 31 is already Apr 1 in Jakarta.
	svc, _ := newTracker(time.Date(2026, 3, 31, 17, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, jakarta), svc.CurrentMonth())

	ctx := context.Background()
	business, worker := uuid.New(), uuid.New()
	_, err := svc.Record(ctx, business, worker, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	st, _ := svc.GetStatus(ctx, business, worker)
	assert.Equal(t, 0, st.DaysWorked, "March work does not count toward April")
	march, _ := svc.StatusForMonth(ctx, business, worker, time.Date(2026, 3, 15, 0, 0, 0, 0, jakarta))
	assert.Equal(t, 1, march.DaysWorked)
}

func TestAlternativeWorkersOrderingAndFilters(t *testing.T) {
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, jakarta)
	svc, db := newTracker(now)
	business := uuid.New()
	month := svc.CurrentMonth()

	a := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")
	b := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000")
	c := uuid.MustParse("cccccccc-0000-0000-0000-000000000000")
	blocked := uuid.New()
	excluded := uuid.New()
	db.AddVerifiedWorker(c, b, a, blocked, excluded)
	db.SetDaysWorked(business, a, month, 3)
	db.SetDaysWorked(business, b, month, 3)
	db.SetDaysWorked(business, c, month, 0)
	db.SetDaysWorked(business, blocked, month, 21)

	got, err := svc.GetAlternativeWorkers(context.Background(), business, month, 0, excluded)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uuid.UUID{c, a, b}, []uuid.UUID{got[0].WorkerID, got[1].WorkerID, got[2].WorkerID})
	assert.Equal(t, 0, got[0].DaysWorked)

	limited, err := svc.GetAlternativeWorkers(context.Background(), business, month, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAlternativeWorkersEmptyWhenEveryoneBlocked(t *testing.T) {
	svc, db := newTracker(time.Date(2026, 5, 20, 10, 0, 0, 0, jakarta))
	business, worker := uuid.New(), uuid.New()
	db.AddVerifiedWorker(worker)
	db.SetDaysWorked(business, worker, svc.CurrentMonth(), 25)

	got, err := svc.GetAlternativeWorkers(context.Background(), business, svc.CurrentMonth(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
