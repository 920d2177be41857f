package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// ErrRailDeclined is returned when the external rail refuses an operation.
var ErrRailDeclined = errors.New("declined by payment rail")

// Rail represents a connector to an external money rail: a mobile money
// operator, a bank switch or a card processor.
type Rail interface {
	// Collect pulls funds from the member's external account.
	Collect(ctx context.Context, req RailRequest) (RailReceipt, error)
	// Payout pushes funds to the member's external account.
	Payout(ctx context.Context, req RailRequest) (RailReceipt, error)
}

// RailRequest describes a single movement on an external rail.
type RailRequest struct {
	Account   wallet.LinkedAccount
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

// RailReceipt captures the rail's response.
type RailReceipt struct {
	Reference string
	Status    string
}

// StaticRail simulates a rail that approves every well-formed request.
type StaticRail struct{}

// Collect approves the collection with a synthetic reference.
func (StaticRail) Collect(_ context.Context, req RailRequest) (RailReceipt, error) {
	if err := validateAccount(req.Account); err != nil {
		return RailReceipt{}, err
	}
	return RailReceipt{Reference: uuid.NewString(), Status: "approved"}, nil
}

// Payout approves the payout with a synthetic reference.
func (StaticRail) Payout(_ context.Context, req RailRequest) (RailReceipt, error) {
	if err := validateAccount(req.Account); err != nil {
		return RailReceipt{}, err
	}
	return RailReceipt{Reference: uuid.NewString(), Status: "approved"}, nil
}

func validateAccount(acc wallet.LinkedAccount) error {
	digits := strings.ReplaceAll(acc.AccountNumber, " ", "")
	minLen, maxLen := 6, 34
	if acc.Type == wallet.AccountCard {
		minLen, maxLen = 12, 19
	}
	if len(digits) < minLen || len(digits) > maxLen {
		return fmt.Errorf("%w: %s account number must be between %d and %d digits", ErrRailDeclined, acc.Type, minLen, maxLen)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: account number must be numeric", ErrRailDeclined)
		}
	}
	return nil
}
