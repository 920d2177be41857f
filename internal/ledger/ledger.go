package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when a debit would take the wallet balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided reference already exists on
	// the wallet and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// Type classifies a balance-affecting event.
type Type string

const (
	TypeDeposit          Type = "deposit"
	TypeWithdrawal       Type = "withdrawal"
	TypeTransfer         Type = "transfer"
	TypePayment          Type = "payment"
	TypeLoanDisbursement Type = "loan_disbursement"
	TypeInvestment       Type = "investment"
	TypeRefund           Type = "refund"
)

// ParseType validates a raw transaction type.
func ParseType(raw string) (Type, error) {
	t := Type(raw)
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypePayment,
		TypeLoanDisbursement, TypeInvestment, TypeRefund:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", raw)
}

// IsCredit reports whether the type adds funds to the wallet.
func (t Type) IsCredit() bool {
	return t == TypeDeposit || t == TypeRefund
}

// IsDebit reports whether the type removes funds from the wallet. Transfers,
// loan disbursements and investments move money out of the funding wallet.
func (t Type) IsDebit() bool {
	switch t {
	case TypeWithdrawal, TypePayment, TypeTransfer, TypeLoanDisbursement, TypeInvestment:
		return true
	}
	return false
}

// Signed returns the balance effect of amount for the given type.
func Signed(t Type, amount decimal.Decimal) decimal.Decimal {
	if t.IsDebit() {
		return amount.Neg()
	}
	return amount
}

// Status tracks the lifecycle of a ledger entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry is an immutable record of one balance-affecting event on a wallet.
type Entry struct {
	TransactionID string          `json:"transaction_id"`
	WalletID      string          `json:"wallet_id"`
	Type          Type            `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        Status          `json:"status"`
	Description   string          `json:"description,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Delta is the observed balance change recorded by the entry.
func (e Entry) Delta() decimal.Decimal {
	return e.BalanceAfter.Sub(e.BalanceBefore)
}

// Request describes a transaction a caller wants applied to a wallet.
type Request struct {
	Type        Type
	Amount      decimal.Decimal
	Description string
	Reference   string
	Metadata    map[string]any
}
