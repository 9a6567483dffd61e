package disputes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayshift/backend/internal/bookings"
	"github.com/dayshift/backend/internal/compliance"
	"github.com/dayshift/backend/internal/ledger"
	"github.com/dayshift/backend/internal/memstore"
	"github.com/dayshift/backend/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Emit(_ context.Context, ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fixture struct {
	db       *memstore.DB
	now      time.Time
	ledger   *ledger.Service
	bookings *bookings.Service
	svc      *Service
	events   *recorder
	worker   uuid.UUID
	business uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       memstore.New(),
		now:      time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC),
		events:   &recorder{},
		worker:   uuid.New(),
		business: uuid.New(),
	}
	clock := func() time.Time { return f.now }
	f.ledger = ledger.NewService(f.db, f.db.Wallets(), f.db.Transactions())
	comp := compliance.NewService(f.db, f.db.Compliance(), time.UTC)
	comp.Now = clock
	f.bookings = bookings.NewService(f.db, f.db.Bookings(), f.ledger, comp, nil, nil)
	f.bookings.Now = clock
	f.svc = NewService(f.db, f.db.Disputes(), f.bookings, f.events, nil)
	f.svc.Now = clock
	return f
}

// completed returns a checked-out two-day booking worth 300,000.
func (f *fixture) completed(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	job := models.Job{ID: uuid.New(), BusinessID: f.business, Title: "Cashier", DailyRate: 150_000,
		StartDate: f.now, EndDate: f.now.AddDate(0, 0, 1)}
	f.db.AddJob(job)
	b, err := f.bookings.ApplyForJob(ctx, f.worker, job.ID)
	require.NoError(t, err)
	_, err = f.bookings.AcceptApplication(ctx, b.ID, f.business)
	require.NoError(t, err)
	_, err = f.bookings.StartWork(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.bookings.Checkout(ctx, b.ID)
	require.NoError(t, err)
	return b.ID
}

func (f *fixture) wallet(t *testing.T) *models.Wallet {
	t.Helper()
	w, err := f.ledger.WalletForOwner(context.Background(), models.WorkerOwner(f.worker))
	require.NoError(t, err)
	return w
}

func (f *fixture) paymentStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()
	b, err := f.bookings.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b.PaymentStatus
}

// Scenario: a dispute freezes release even after the deadline; resolving it
// with release moves the funds regardless of the deadline.
func TestDisputeFreezesThenReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)

	d, err := f.svc.RaiseDispute(ctx, id, f.business, "worker left early")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPending, d.Status)
	assert.Equal(t, models.PaymentStatusPendingReview, d.PriorPaymentStatus)
	assert.Equal(t, models.PaymentStatusDisputed, f.paymentStatus(t, id))

	f.now = f.now.Add(100 * time.Hour)
	_, err = f.bookings.ReleasePayment(ctx, id)
	assert.ErrorIs(t, err, models.ErrAlreadyDisputed)

	d, err = f.svc.MarkInvestigating(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusInvestigating, d.Status)

	d, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeRelease, "timesheet confirmed")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, d.Status)
	require.NotNil(t, d.Resolution)
	assert.Equal(t, models.DisputeOutcomeRelease, *d.Resolution)
	require.NotNil(t, d.ResolvedAt)

	assert.Equal(t, models.PaymentStatusAvailable, f.paymentStatus(t, id))
	w := f.wallet(t)
	assert.Equal(t, int64(0), w.PendingBalance)
	assert.Equal(t, int64(300_000), w.AvailableBalance)
}

func TestResolveReleaseBypassesDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)

	d, err := f.svc.RaiseDispute(ctx, id, f.worker, "business is stalling")
	require.NoError(t, err)
	_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeRelease, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAvailable, f.paymentStatus(t, id))
}

func TestResolveCancelReversesPendingFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)

	d, err := f.svc.RaiseDispute(ctx, id, f.business, "no show")
	require.NoError(t, err)
	_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeCancel, "confirmed no show")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCancelled, f.paymentStatus(t, id))
	w := f.wallet(t)
	assert.Equal(t, int64(0), w.PendingBalance)
	assert.Equal(t, int64(0), w.AvailableBalance)
	rep, err := f.ledger.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, rep.Balanced())
}

func TestDisputeOnAvailablePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("cancel claws back", func(t *testing.T) {
		id := f.completed(t)
		f.now = f.now.Add(73 * time.Hour)
		_, err := f.bookings.ReleasePayment(ctx, id)
		require.NoError(t, err)

		d, err := f.svc.RaiseDispute(ctx, id, f.business, "damaged equipment")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusAvailable, d.PriorPaymentStatus)

		_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeCancel, "")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCancelled, f.paymentStatus(t, id))
		assert.Equal(t, int64(0), f.wallet(t).AvailableBalance)
	})

	t.Run("reject restores available", func(t *testing.T) {
		id := f.completed(t)
		f.now = f.now.Add(73 * time.Hour)
		_, err := f.bookings.ReleasePayment(ctx, id)
		require.NoError(t, err)

		d, err := f.svc.RaiseDispute(ctx, id, f.business, "late arrival")
		require.NoError(t, err)
		d, err = f.svc.RejectDispute(ctx, d.ID, "arrival within grace period")
		require.NoError(t, err)
		assert.Equal(t, models.DisputeStatusRejected, d.Status)
		assert.Equal(t, models.PaymentStatusAvailable, f.paymentStatus(t, id))
		assert.Equal(t, int64(300_000), f.wallet(t).AvailableBalance)
	})
}

func TestRaiseDisputeGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)

	_, err := f.svc.RaiseDispute(ctx, id, f.business, "   ")
	assert.ErrorIs(t, err, models.ErrInvalidState, "reason required")

	_, err = f.svc.RaiseDispute(ctx, id, uuid.New(), "stranger")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.RaiseDispute(ctx, id, f.worker, "first")
	require.NoError(t, err)
	_, err = f.svc.RaiseDispute(ctx, id, f.business, "second")
	assert.ErrorIs(t, err, models.ErrAlreadyDisputed)
}

func TestRaiseDisputeBeforeCheckoutRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := models.Job{ID: uuid.New(), BusinessID: f.business, Title: "Porter", DailyRate: 1, StartDate: f.now, EndDate: f.now}
	f.db.AddJob(job)
	b, err := f.bookings.ApplyForJob(ctx, f.worker, job.ID)
	require.NoError(t, err)

	_, err = f.svc.RaiseDispute(ctx, b.ID, f.worker, "too early")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestResolveGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)
	d, err := f.svc.RaiseDispute(ctx, id, f.worker, "unpaid overtime")
	require.NoError(t, err)

	_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomePartial, "")
	assert.ErrorIs(t, err, models.ErrUnsupportedOutcome)
	assert.Equal(t, models.PaymentStatusDisputed, f.paymentStatus(t, id), "unsupported outcome changes nothing")

	_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeRelease, "")
	require.NoError(t, err)
	_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeCancel, "")
	assert.ErrorIs(t, err, models.ErrInvalidState, "already resolved")

	_, err = f.svc.MarkInvestigating(ctx, d.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestDisputeEventsEmittedAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)

	d, err := f.svc.RaiseDispute(ctx, id, f.worker, "missing pay")
	require.NoError(t, err)
	_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeRelease, "")
	require.NoError(t, err)

	require.Len(t, f.events.events, 3)
	assert.Equal(t, models.EventDisputeRaised, f.events.events[0].Type)
	assert.Equal(t, f.business, f.events.events[0].UserID, "the other party is told")
	assert.Equal(t, models.EventDisputeResolved, f.events.events[1].Type)
	assert.Equal(t, models.EventDisputeResolved, f.events.events[2].Type)
}

func TestClawBackAfterWithdrawalFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.completed(t)
	f.now = f.now.Add(73 * time.Hour)
	_, err := f.bookings.ReleasePayment(ctx, id)
	require.NoError(t, err)
	_, err = f.ledger.Withdraw(ctx, f.wallet(t).ID, 250_000)
	require.NoError(t, err)

	d, err := f.svc.RaiseDispute(ctx, id, f.business, "wrong hours")
	require.NoError(t, err)
	_, err = f.svc.ResolveDispute(ctx, d.ID, models.DisputeOutcomeCancel, "")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	got, err := f.svc.GetDispute(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive(), "failed resolution leaves the dispute open")
	assert.Equal(t, models.PaymentStatusDisputed, f.paymentStatus(t, id))
	assert.Equal(t, int64(50_000), f.wallet(t).AvailableBalance)
}
