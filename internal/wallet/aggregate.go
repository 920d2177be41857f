package wallet

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
)

// Apply appends a completed ledger entry for req and moves the balance. It
// does not consult the limit policy; callers that need limits enforced go
// through Service.Transact. A debit that would take the balance below zero is
// refused with ledger.ErrInsufficientFunds.
//
// The returned entry is pending persistence until the repository saves the
// wallet. After a failed save the wallet must be reloaded before reuse.
func (w *Wallet) Apply(req ledger.Request, now time.Time) (ledger.Entry, error) {
	if err := validateRequest(req); err != nil {
		return ledger.Entry{}, err
	}

	before := w.Balance
	after := before.Add(ledger.Signed(req.Type, req.Amount))
	if after.IsNegative() {
		return ledger.Entry{}, ledger.ErrInsufficientFunds
	}

	entry := ledger.Entry{
		TransactionID: uuid.NewString(),
		WalletID:      w.ID,
		Type:          req.Type,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        ledger.StatusCompleted,
		Description:   req.Description,
		Reference:     strings.TrimSpace(req.Reference),
		Metadata:      copyMetadata(req.Metadata),
		CreatedAt:     now.UTC(),
	}

	w.Ledger = append(w.Ledger, entry)
	w.pending = append(w.pending, entry)
	w.Balance = after
	w.UpdatedAt = entry.CreatedAt
	return entry, nil
}

// acceptsRaw reports whether an unchecked mutation of type t may land. A
// closed wallet accepts nothing. Suspended and frozen wallets still take
// credits so that reversals of failed payouts are never stranded.
func (w *Wallet) acceptsRaw(t ledger.Type) error {
	switch {
	case w.Status == StatusActive:
		return nil
	case w.Status == StatusClosed:
		return ErrWalletInactive
	case t.IsCredit():
		return nil
	default:
		return ErrWalletInactive
	}
}

func validateRequest(req ledger.Request) error {
	if _, err := ledger.ParseType(string(req.Type)); err != nil {
		return &ValidationError{Field: "type", Message: err.Error()}
	}
	if !req.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return nil
}

func copyMetadata(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// transition validates a status change.
func (w *Wallet) transition(to Status, now time.Time) error {
	if w.Status == to {
		return nil
	}
	if w.Status == StatusClosed {
		return ErrInvalidTransition
	}
	w.Status = to
	w.UpdatedAt = now.UTC()
	return nil
}

// linkAccount attaches acc, demoting any other default of the same type. The
// first account of a type becomes its default.
func (w *Wallet) linkAccount(acc LinkedAccount) LinkedAccount {
	if acc.IsDefault {
		for i := range w.LinkedAccounts {
			if w.LinkedAccounts[i].Type == acc.Type {
				w.LinkedAccounts[i].IsDefault = false
			}
		}
	} else if _, ok := w.DefaultAccount(acc.Type); !ok {
		acc.IsDefault = true
	}
	w.LinkedAccounts = append(w.LinkedAccounts, acc)
	return acc
}
