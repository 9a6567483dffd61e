package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction type enums. pending and cancelled move pending_balance;
// released, credit and debit move available_balance.
const (
	TxTypeCredit    = "credit"
	TxTypeDebit     = "debit"
	TxTypePending   = "pending"
	TxTypeReleased  = "released"
	TxTypeCancelled = "cancelled"
)

const DefaultCurrency = "IDR"

// WalletOwner identifies the party owning a wallet. Exactly one field is set.
type WalletOwner struct {
	WorkerID   *uuid.UUID
	BusinessID *uuid.UUID
}

// Valid reports whether exactly one owner reference is set.
func (o WalletOwner) Valid() bool {
	return (o.WorkerID == nil) != (o.BusinessID == nil)
}

func WorkerOwner(id uuid.UUID) WalletOwner   { return WalletOwner{WorkerID: &id} }
func BusinessOwner(id uuid.UUID) WalletOwner { return WalletOwner{BusinessID: &id} }

type Wallet struct {
	ID               uuid.UUID  `json:"id"`
	WorkerID         *uuid.UUID `json:"worker_id,omitempty"`
	BusinessID       *uuid.UUID `json:"business_id,omitempty"`
	PendingBalance   int64      `json:"pending_balance"`
	AvailableBalance int64      `json:"available_balance"`
	Currency         string     `json:"currency"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// WalletTransaction is an immutable ledger entry.
type WalletTransaction struct {
	ID          uuid.UUID  `json:"id"`
	WalletID    uuid.UUID  `json:"wallet_id"`
	BookingID   *uuid.UUID `json:"booking_id,omitempty"`
	Type        string     `json:"type"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AvailableDelta is the signed effect of the entry on available_balance.
func (t *WalletTransaction) AvailableDelta() int64 {
	switch t.Type {
	case TxTypeReleased, TxTypeCredit:
		return t.Amount
	case TxTypeDebit:
		return -t.Amount
	}
	return 0
}

// PendingDelta is the signed effect of the entry on pending_balance.
func (t *WalletTransaction) PendingDelta() int64 {
	switch t.Type {
	case TxTypePending:
		return t.Amount
	case TxTypeReleased, TxTypeCancelled:
		return -t.Amount
	}
	return 0
}
