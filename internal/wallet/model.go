package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
)

// Status is the lifecycle state of a wallet.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusClosed    Status = "closed"
	StatusFrozen    Status = "frozen"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	switch s {
	case StatusActive, StatusSuspended, StatusClosed, StatusFrozen:
		return s, nil
	}
	return "", &ValidationError{Field: "status", Message: "unknown status " + raw}
}

// Limits bounds how much money may move through a wallet.
type Limits struct {
	Daily       decimal.Decimal `json:"daily_limit"`
	Transaction decimal.Decimal `json:"transaction_limit"`
	Monthly     decimal.Decimal `json:"monthly_limit"`
}

// withDefaults fills zero limits from defaults.
func (l Limits) withDefaults(defaults Limits) Limits {
	if l.Daily.IsZero() {
		l.Daily = defaults.Daily
	}
	if l.Transaction.IsZero() {
		l.Transaction = defaults.Transaction
	}
	if l.Monthly.IsZero() {
		l.Monthly = defaults.Monthly
	}
	return l
}

func (l Limits) validate() error {
	if !l.Daily.IsPositive() {
		return &ValidationError{Field: "daily_limit", Message: "must be positive"}
	}
	if !l.Transaction.IsPositive() {
		return &ValidationError{Field: "transaction_limit", Message: "must be positive"}
	}
	if !l.Monthly.IsPositive() {
		return &ValidationError{Field: "monthly_limit", Message: "must be positive"}
	}
	return nil
}

// AccountType is the rail category of a linked external account.
type AccountType string

const (
	AccountMobileMoney AccountType = "mobile_money"
	AccountBank        AccountType = "bank"
	AccountCard        AccountType = "card"
)

// LinkedAccount is an external payment rail attached to a wallet for
// top-ups and withdrawals.
type LinkedAccount struct {
	ID            string      `json:"id"`
	Type          AccountType `json:"type"`
	Provider      string      `json:"provider"`
	AccountNumber string      `json:"account_number"`
	AccountName   string      `json:"account_name,omitempty"`
	IsDefault     bool        `json:"is_default"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Wallet is the consistency boundary for a member's balance and ledger.
//
// Ledger holds only the recent window of entries the repository loaded; the
// full history is reachable through paged queries.
type Wallet struct {
	ID             string
	OwnerID        string
	Balance        decimal.Decimal
	Currency       string
	Status         Status
	Limits         Limits
	Ledger         []ledger.Entry
	LinkedAccounts []LinkedAccount
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// entries appended since the wallet was loaded, awaiting Save.
	pending []ledger.Entry
}

// PendingEntries returns the entries appended since the wallet was loaded.
func (w *Wallet) PendingEntries() []ledger.Entry {
	return w.pending
}

// MarkPersisted clears pending entries after a successful save.
func (w *Wallet) MarkPersisted() {
	w.pending = nil
	w.Version++
}

// DefaultAccount returns the default linked account for the given rail type.
func (w Wallet) DefaultAccount(t AccountType) (LinkedAccount, bool) {
	for _, acc := range w.LinkedAccounts {
		if acc.Type == t && acc.IsDefault {
			return acc, true
		}
	}
	return LinkedAccount{}, false
}

// LinkedAccount finds a linked account by id.
func (w Wallet) LinkedAccount(id string) (LinkedAccount, bool) {
	for _, acc := range w.LinkedAccounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return LinkedAccount{}, false
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Amount   decimal.Decimal
	Currency string
	AsOf     time.Time
}
