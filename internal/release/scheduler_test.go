package release

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayshift/backend/internal/bookings"
	"github.com/dayshift/backend/internal/compliance"
	"github.com/dayshift/backend/internal/disputes"
	"github.com/dayshift/backend/internal/ledger"
	"github.com/dayshift/backend/internal/memstore"
	"github.com/dayshift/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Stub booking service for failure isolation
// ---------------------------------------------------------------------------

type stubBookings struct {
	mu       sync.Mutex
	due      []*models.Booking
	listErr  error
	results  map[uuid.UUID]error
	hang     map[uuid.UUID]bool
	released []uuid.UUID
}

func (s *stubBookings) ListDuePayments(_ context.Context, _ time.Time, limit int) ([]*models.Booking, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit > 0 && len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *stubBookings) ReleasePayment(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if s.hang[id] {
		time.Sleep(time.Second)
		return nil, ctx.Err()
	}
	if err := s.results[id]; err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.released = append(s.released, id)
	s.mu.Unlock()
	return &models.Booking{ID: id, PaymentStatus: models.PaymentStatusAvailable}, nil
}

func dueBookings(n int) []*models.Booking {
	out := make([]*models.Booking, n)
	for i := range out {
		out[i] = &models.Booking{ID: uuid.New()}
	}
	return out
}

func TestFailuresAreCountedWithoutAbortingTheBatch(t *testing.T) {
	due := dueBookings(4)
	stub := &stubBookings{
		due: due,
		results: map[uuid.UUID]error{
			due[1].ID: errors.New("wallet row locked too long"),
			due[2].ID: models.ErrAlreadyDisputed,
		},
	}
	s := NewScheduler(stub, nil)

	res, err := s.ReleaseDuePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Released)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, due[1].ID, res.Failures[0].BookingID)
	assert.Contains(t, res.Failures[0].Reason, "locked")
	assert.Equal(t, []uuid.UUID{due[0].ID, due[3].ID}, stub.released)
}

func TestWrongStateAndNotYetDueAreSkipped(t *testing.T) {
	due := dueBookings(2)
	stub := &stubBookings{due: due, results: map[uuid.UUID]error{
		due[0].ID: models.ErrWrongState,
		due[1].ID: models.ErrNotYetDue,
	}}
	res, err := NewScheduler(stub, nil).ReleaseDuePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, res)
}

func TestHungReleaseTimesOut(t *testing.T) {
	due := dueBookings(2)
	stub := &stubBookings{due: due, hang: map[uuid.UUID]bool{due[0].ID: true}}
	s := NewScheduler(stub, nil)
	s.ItemTimeout = 20 * time.Millisecond

	start := time.Now()
	res, err := s.ReleaseDuePayments(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, res.Released)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Failures[0].Reason, "timed out")
}

func TestBatchSizeLimitsARun(t *testing.T) {
	stub := &stubBookings{due: dueBookings(5)}
	s := NewScheduler(stub, nil)
	s.BatchSize = 3

	res, err := s.ReleaseDuePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Released)
}

func TestListFailureIsReturned(t *testing.T) {
	stub := &stubBookings{listErr: errors.New("connection reset")}
	_, err := NewScheduler(stub, nil).ReleaseDuePayments(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

// ---------------------------------------------------------------------------
// Against the real state machine
// ---------------------------------------------------------------------------

type fixture struct {
	db     *memstore.DB
	now    time.Time
	ledger *ledger.Service
	svc    *bookings.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: memstore.New(), now: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.ledger = ledger.NewService(f.db, f.db.Wallets(), f.db.Transactions())
	comp := compliance.NewService(f.db, f.db.Compliance(), time.UTC)
	comp.Now = clock
	f.svc = bookings.NewService(f.db, f.db.Bookings(), f.ledger, comp, nil, nil)
	f.svc.Now = clock
	return f
}

// completedBooking checks out a one-day booking for worker at rate.
func (f *fixture) completedBooking(t *testing.T, worker uuid.UUID, rate int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	business := uuid.New()
	job := models.Job{ID: uuid.New(), BusinessID: business, Title: "Shift", DailyRate: rate, StartDate: f.now, EndDate: f.now}
	f.db.AddJob(job)
	b, err := f.svc.ApplyForJob(ctx, worker, job.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptApplication(ctx, b.ID, business)
	require.NoError(t, err)
	_, err = f.svc.StartWork(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, b.ID)
	require.NoError(t, err)
	return b.ID
}

// Scenario: only bookings past their deadline are released, and a second
// run finds nothing left to do.
func TestReleaseDuePaymentsEndToEnd(t *testing.T) {
	f := newFixture(t)
	worker := uuid.New()

	early := f.completedBooking(t, worker, 100_000)
	f.now = f.now.Add(24 * time.Hour)
	late := f.completedBooking(t, worker, 50_000)

	// early is due, late still has 24h to go.
	f.now = f.now.Add(48*time.Hour + time.Minute)

	s := NewScheduler(f.svc, nil)
	s.Now = func() time.Time { return f.now }

	res, err := s.ReleaseDuePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Released: 1}, res)

	b, _ := f.svc.GetBooking(context.Background(), early)
	assert.Equal(t, models.PaymentStatusAvailable, b.PaymentStatus)
	b, _ = f.svc.GetBooking(context.Background(), late)
	assert.Equal(t, models.PaymentStatusPendingReview, b.PaymentStatus)

	w, err := f.ledger.WalletForOwner(context.Background(), models.WorkerOwner(worker))
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), w.PendingBalance)
	assert.Equal(t, int64(100_000), w.AvailableBalance)

	again, err := s.ReleaseDuePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, again)
}

// Scenario: a disputed booking is left alone by runs after its deadline and
// released once the dispute resolves.
func TestDisputedBookingWaitsForResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := uuid.New()
	id := f.completedBooking(t, worker, 100_000)
	b, err := f.svc.GetBooking(ctx, id)
	require.NoError(t, err)

	gate := disputes.NewService(f.db, f.db.Disputes(), f.svc, nil, nil)
	gate.Now = func() time.Time { return f.now }
	d, err := gate.RaiseDispute(ctx, id, b.BusinessID, "hours do not match")
	require.NoError(t, err)

	f.now = f.now.Add(100 * time.Hour)
	s := NewScheduler(f.svc, nil)
	s.Now = func() time.Time { return f.now }

	balances := func() (int64, int64) {
		w, err := f.ledger.WalletForOwner(ctx, models.WorkerOwner(worker))
		require.NoError(t, err)
		return w.PendingBalance, w.AvailableBalance
	}

	res, err := s.ReleaseDuePayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Released)
	pending, available := balances()
	assert.Equal(t, int64(100_000), pending)
	assert.Equal(t, int64(0), available)

	_, err = f.svc.ReleasePayment(ctx, id)
	assert.ErrorIs(t, err, models.ErrAlreadyDisputed)

	_, err = gate.ResolveDispute(ctx, d.ID, models.DisputeOutcomeRelease, "confirmed")
	require.NoError(t, err)

	pending, available = balances()
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(100_000), available)
	b, err = f.svc.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAvailable, b.PaymentStatus)

	res, err = s.ReleaseDuePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res, "resolved booking is not released twice")
}

func TestConcurrentRunsReleaseEachBookingOnce(t *testing.T) {
	f := newFixture(t)
	worker := uuid.New()
	for i := 0; i < 5; i++ {
		f.completedBooking(t, worker, 10_000)
	}
	f.now = f.now.Add(73 * time.Hour)

	s := NewScheduler(f.svc, nil)
	s.Now = func() time.Time { return f.now }

	var wg sync.WaitGroup
	results := make([]Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.ReleaseDuePayments(context.Background())
		}(i)
	}
	wg.Wait()

	var released, failed int
	for _, r := range results {
		released += r.Released
		failed += r.Failed
	}
	assert.Equal(t, 5, released)
	assert.Equal(t, 0, failed)

	w, err := f.ledger.WalletForOwner(context.Background(), models.WorkerOwner(worker))
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), w.AvailableBalance)
	assert.Equal(t, int64(0), w.PendingBalance)
}
