package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrWalletNotFound is returned when no wallet matches the lookup.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletExists is returned when an owner already has a wallet.
	ErrWalletExists = errors.New("wallet already exists for owner")
	// ErrConflict signals that another writer persisted a newer version of the
	// wallet. Callers reload and retry the whole decide-then-apply sequence.
	ErrConflict = errors.New("wallet modified concurrently")
	// ErrInvalidTransition rejects status changes out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrWalletInactive rejects raw mutations a wallet's status does not allow.
	ErrWalletInactive = errors.New("wallet does not accept this transaction")
	// ErrAccountNotFound is returned for unknown linked accounts.
	ErrAccountNotFound = errors.New("linked account not found")
	// ErrEntryNotFound is returned when no ledger entry carries the reference.
	ErrEntryNotFound = errors.New("ledger entry not found")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PolicyDeniedError is the business outcome of a failed limit check.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return "transaction denied: " + e.Reason
}

// PersistenceError wraps a failure of the underlying store. When it surfaces
// from a mutation the outcome is indeterminate and the caller must reload the
// wallet and look for its reference before retrying.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPolicyDenied reports whether err carries a limit policy denial and returns
// its reason.
func IsPolicyDenied(err error) (string, bool) {
	var denied *PolicyDeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return "", false
}
