package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
)

// Denial reasons returned by the limit policy.
const (
	ReasonInvalidAmount           = "amount must be positive"
	ReasonNotActive               = "wallet not active"
	ReasonInsufficientBalance     = "insufficient balance"
	ReasonExceedsTransactionLimit = "amount exceeds transaction limit"
	ReasonExceedsDailyLimit       = "amount exceeds daily limit"
	ReasonExceedsMonthlyLimit     = "amount exceeds monthly limit"
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Policy decides whether a proposed transaction may proceed. It is a pure
// function of the wallet state, the amount and the clock.
type Policy struct {
	Location       *time.Location
	EnforceMonthly bool
	Now            func() time.Time
}

// NewPolicy builds a policy evaluating calendar windows in loc.
func NewPolicy(loc *time.Location, enforceMonthly bool) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{Location: loc, EnforceMonthly: enforceMonthly, Now: time.Now}
}

func (p Policy) now() time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	if p.Now == nil {
		return time.Now().In(loc)
	}
	return p.Now().In(loc)
}

// CanTransact evaluates the limit rules in order: status, balance for debits,
// per-transaction limit, daily accumulation, then monthly accumulation when
// enabled.
//
// The daily and monthly sums include every completed entry regardless of
// direction, so deposits consume the same allowance as withdrawals.
func (p Policy) CanTransact(w Wallet, amount decimal.Decimal, typ ledger.Type) Decision {
	if !amount.IsPositive() {
		return deny(ReasonInvalidAmount)
	}
	if w.Status != StatusActive {
		return deny(ReasonNotActive)
	}
	if typ.IsDebit() && amount.GreaterThan(w.Balance) {
		return deny(ReasonInsufficientBalance)
	}
	if amount.GreaterThan(w.Limits.Transaction) {
		return deny(ReasonExceedsTransactionLimit)
	}

	now := p.now()
	day := startOfDay(now)
	if completedWithin(w, day, day.AddDate(0, 0, 1)).Add(amount).GreaterThan(w.Limits.Daily) {
		return deny(ReasonExceedsDailyLimit)
	}
	if p.EnforceMonthly {
		month := startOfMonth(now)
		if completedWithin(w, month, month.AddDate(0, 1, 0)).Add(amount).GreaterThan(w.Limits.Monthly) {
			return deny(ReasonExceedsMonthlyLimit)
		}
	}
	return Decision{Allowed: true}
}

// WindowStart is the earliest creation time the policy looks at. Repositories
// load ledger entries from this point on.
func (p Policy) WindowStart() time.Time {
	now := p.now()
	if p.EnforceMonthly {
		return startOfMonth(now)
	}
	return startOfDay(now)
}

// completedWithin sums completed entry amounts created in [from, to).
func completedWithin(w Wallet, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range w.Ledger {
		if e.Status != ledger.StatusCompleted {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
