package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dayshift/backend/internal/models"
)

type ComplianceService interface {
	GetStatus(ctx context.Context, businessID, workerID uuid.UUID) (models.ComplianceStatus, error)
	GetAlternativeWorkers(ctx context.Context, businessID uuid.UUID, month time.Time, limit int, exclude ...uuid.UUID) ([]models.WorkerCapacity, error)
	CurrentMonth() time.Time
}

// ComplianceHandler lets a business check a worker's monthly count and find
// substitutes. The business is always the caller.
type ComplianceHandler struct {
	Compliance ComplianceService
	Logger     *slog.Logger
}

// --- GET /api/v1/compliance/workers/{id} ---

func (h *ComplianceHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	workerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	st, err := h.Compliance.GetStatus(r.Context(), p.AccountID, workerID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- GET /api/v1/compliance/alternatives?month=YYYY-MM&limit=&exclude= ---
// month defaults to the current month in the tracker's timezone.

func (h *ComplianceHandler) Alternatives(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit := 5
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	month := h.Compliance.CurrentMonth()
	if v := q.Get("month"); v != "" {
		m, err := time.ParseInLocation("2006-01", v, month.Location())
		if err != nil {
			http.Error(w, `{"error":"invalid month, want YYYY-MM"}`, http.StatusBadRequest)
			return
		}
		month = m
	}
	var exclude []uuid.UUID
	for _, v := range q["exclude"] {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, `{"error":"invalid exclude"}`, http.StatusBadRequest)
			return
		}
		exclude = append(exclude, id)
	}
	alts, err := h.Compliance.GetAlternativeWorkers(r.Context(), p.AccountID, month, limit, exclude...)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if alts == nil {
		alts = []models.WorkerCapacity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": alts})
}
