package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dayshift/backend/internal/models"
)

type DisputeService interface {
	RaiseDispute(ctx context.Context, bookingID, raisedBy uuid.UUID, reason string) (*models.Dispute, error)
	MarkInvestigating(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error)
	ResolveDispute(ctx context.Context, disputeID uuid.UUID, outcome, adminNotes string) (*models.Dispute, error)
	RejectDispute(ctx context.Context, disputeID uuid.UUID, adminNotes string) (*models.Dispute, error)
	GetDispute(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error)
}

// DisputeHandler serves dispute endpoints. Everything but raising is admin-only
// and gated by the router.
type DisputeHandler struct {
	Disputes DisputeService
	Logger   *slog.Logger
}

type raiseDisputeRequest struct {
	Reason string `json:"reason"`
}

type resolveDisputeRequest struct {
	Outcome    string `json:"outcome"`
	AdminNotes string `json:"admin_notes"`
}

// --- POST /api/v1/bookings/{id}/disputes ---

func (h *DisputeHandler) Raise(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req raiseDisputeRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Disputes.RaiseDispute(r.Context(), bookingID, p.AccountID, req.Reason)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// --- GET /api/v1/disputes/{id} ---

func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.Disputes.GetDispute(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- POST /api/v1/disputes/{id}/investigate ---

func (h *DisputeHandler) Investigate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.Disputes.MarkInvestigating(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- POST /api/v1/disputes/{id}/resolve ---

func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Disputes.ResolveDispute(r.Context(), id, req.Outcome, req.AdminNotes)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- POST /api/v1/disputes/{id}/reject ---

func (h *DisputeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Disputes.RejectDispute(r.Context(), id, req.AdminNotes)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
