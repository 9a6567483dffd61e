package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dayshift/backend/internal/auth"
	"github.com/dayshift/backend/internal/middleware"
	"github.com/dayshift/backend/internal/models"
	"github.com/dayshift/backend/internal/release"
)

// BookingService is the booking state machine as seen by HTTP callers.
type BookingService interface {
	ApplyForJob(ctx context.Context, workerID, jobID uuid.UUID) (*models.Booking, error)
	AcceptApplication(ctx context.Context, bookingID, businessID uuid.UUID) (*models.Booking, error)
	RejectApplication(ctx context.Context, bookingID, businessID uuid.UUID) (*models.Booking, error)
	CancelApplication(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error)
	StartWork(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	Checkout(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	ReleasePayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	PayoutBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
}

// ReleaseRunner triggers a release scheduler run on demand.
type ReleaseRunner interface {
	ReleaseDuePayments(ctx context.Context) (release.Result, error)
}

// BookingHandler serves /api/v1/jobs/{id}/apply and /api/v1/bookings endpoints.
type BookingHandler struct {
	Bookings BookingService
	Releases ReleaseRunner
	Logger   *slog.Logger
}

// --- POST /api/v1/jobs/{id}/apply ---

func (h *BookingHandler) Apply(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.ApplyForJob(r.Context(), p.AccountID, jobID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// --- GET /api/v1/bookings/{id} ---

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, _, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- POST /api/v1/bookings/{id}/accept|reject ---

func (h *BookingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.businessAction(w, r, h.Bookings.AcceptApplication)
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.businessAction(w, r, h.Bookings.RejectApplication)
}

func (h *BookingHandler) businessAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, bookingID, businessID uuid.UUID) (*models.Booking, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := fn(r.Context(), id, p.AccountID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- POST /api/v1/bookings/{id}/cancel ---

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.CancelApplication(r.Context(), id, p.AccountID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- POST /api/v1/bookings/{id}/start|checkout ---

func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, h.Bookings.StartWork)
}

func (h *BookingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, h.Bookings.Checkout)
}

// Payout settles an available payment to the worker.
func (h *BookingHandler) Payout(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, h.Bookings.PayoutBooking)
}

func (h *BookingHandler) workerAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)) {
	b, p, ok := h.load(w, r)
	if !ok {
		return
	}
	if p.Role != auth.RoleAdmin && p.AccountID != b.WorkerID {
		writeError(w, h.Logger, models.ErrNotFound)
		return
	}
	b, err := fn(r.Context(), b.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- POST /api/v1/bookings/{id}/release (admin) ---

func (h *BookingHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.ReleasePayment(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- POST /api/v1/admin/release-due (admin) ---

type releaseRunResponse struct {
	release.Result
	DurationMS int64 `json:"duration_ms"`
}

func (h *BookingHandler) RunReleases(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	res, err := h.Releases.ReleaseDuePayments(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, releaseRunResponse{Result: res, DurationMS: time.Since(start).Milliseconds()})
}

// load fetches the booking in the path and hides it from callers who are
// not a party to it.
func (h *BookingHandler) load(w http.ResponseWriter, r *http.Request) (*models.Booking, *middleware.Principal, bool) {
	p, ok := principal(w, r)
	if !ok {
		return nil, nil, false
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, nil, false
	}
	b, err := h.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return nil, nil, false
	}
	if p.Role != auth.RoleAdmin && p.AccountID != b.WorkerID && p.AccountID != b.BusinessID {
		writeError(w, h.Logger, models.ErrNotFound)
		return nil, nil, false
	}
	return b, p, true
}
