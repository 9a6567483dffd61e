package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dayshift/backend/internal/middleware"
	"github.com/dayshift/backend/internal/models"
)

type errorResponse struct {
	Error        string                  `json:"error"`
	Compliance   *models.ComplianceStatus `json:"compliance,omitempty"`
	Alternatives []models.WorkerCapacity `json:"alternatives,omitempty"`
}

// writeError maps the domain error taxonomy to HTTP status codes. Unknown
// errors are logged and hidden behind a 500.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var ce *models.ComplianceError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, errorResponse{Error: ce.Error(), Compliance: &ce.Status, Alternatives: ce.Alternatives})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, models.ErrNotYetDue):
		writeJSON(w, http.StatusTooEarly, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrInsufficientFunds):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrUnsupportedOutcome):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrAlreadyDisputed),
		errors.Is(err, models.ErrInsufficientContext):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pathID parses the {name} path wildcard as a UUID, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		http.Error(w, `{"error":"invalid `+name+`"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// principal returns the authenticated caller, writing 401 when absent.
func principal(w http.ResponseWriter, r *http.Request) (*middleware.Principal, bool) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	return p, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return false
	}
	return true
}
