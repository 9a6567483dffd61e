package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dayshift/backend/internal/auth"
	"github.com/dayshift/backend/internal/ledger"
	"github.com/dayshift/backend/internal/models"
)

type LedgerService interface {
	WalletForOwner(ctx context.Context, owner models.WalletOwner) (*models.Wallet, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error)
	Withdraw(ctx context.Context, walletID uuid.UUID, amount int64) (*models.Wallet, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (ledger.ReconcileReport, error)
	Deactivate(ctx context.Context, walletID uuid.UUID) error
}

// WalletHandler serves the caller's wallet and the admin audit endpoints.
type WalletHandler struct {
	Ledger LedgerService
	Logger *slog.Logger
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

// --- GET /api/v1/wallet ---

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.own(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// --- GET /api/v1/wallet/transactions ---

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.own(w, r)
	if !ok {
		return
	}
	txs, err := h.Ledger.ListTransactions(r.Context(), wallet.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if txs == nil {
		txs = []*models.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// --- POST /api/v1/wallet/withdraw ---

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error":"amount must be > 0"}`, http.StatusBadRequest)
		return
	}
	wallet, ok := h.own(w, r)
	if !ok {
		return
	}
	updated, err := h.Ledger.Withdraw(r.Context(), wallet.ID, req.Amount)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- GET /api/v1/wallets/{id}/reconcile (admin) ---

func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rep, err := h.Ledger.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if !rep.Balanced() {
		h.Logger.Warn("wallet out of balance", "wallet_id", id,
			"pending", rep.PendingBalance, "ledger_pending", rep.LedgerPending,
			"available", rep.AvailableBalance, "ledger_available", rep.LedgerAvailable)
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep, "balanced": rep.Balanced()})
}

// --- POST /api/v1/wallets/{id}/deactivate (admin) ---

func (h *WalletHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Ledger.Deactivate(r.Context(), id); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WalletHandler) own(w http.ResponseWriter, r *http.Request) (*models.Wallet, bool) {
	p, ok := principal(w, r)
	if !ok {
		return nil, false
	}
	var owner models.WalletOwner
	switch p.Role {
	case auth.RoleWorker:
		owner = models.WorkerOwner(p.AccountID)
	case auth.RoleBusiness:
		owner = models.BusinessOwner(p.AccountID)
	default:
		http.Error(w, `{"error":"role has no wallet"}`, http.StatusForbidden)
		return nil, false
	}
	wallet, err := h.Ledger.WalletForOwner(r.Context(), owner)
	if err != nil {
		writeError(w, h.Logger, err)
		return nil, false
	}
	return wallet, true
}
