package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not permitted from the
	// current state. Callers should re-read state before retrying.
	ErrInvalidState = errors.New("invalid state")
	// ErrWrongState is the release-specific form: payment is not pending review.
	ErrWrongState = fmt.Errorf("%w: payment is not pending review", ErrInvalidState)

	ErrComplianceLimitExceeded = errors.New("compliance limit exceeded")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	// ErrInsufficientContext is returned for mutations on an inactive wallet.
	ErrInsufficientContext = errors.New("wallet is inactive")
	ErrAlreadyDisputed     = errors.New("booking already disputed")
	ErrNotYetDue           = errors.New("review window has not elapsed")
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedOutcome  = errors.New("unsupported dispute outcome")

	// ErrConditionFailed is returned by stores when a guarded update matched
	// no row, e.g. a balance below the amount being moved.
	ErrConditionFailed = errors.New("update condition failed")
)

// ComplianceError is returned when acceptance is blocked by the monthly cap.
// It carries the substitutes a caller can offer instead.
type ComplianceError struct {
	Status       ComplianceStatus
	Alternatives []WorkerCapacity
}

func (e *ComplianceError) Error() string {
	return fmt.Sprintf("%s: worker %s has worked %d days for business %s this month",
		ErrComplianceLimitExceeded, e.Status.WorkerID, e.Status.DaysWorked, e.Status.BusinessID)
}

func (e *ComplianceError) Unwrap() error { return ErrComplianceLimitExceeded }
