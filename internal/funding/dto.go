package funding

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingRequest captures a top-up or withdrawal against a linked account.
// Without linked_account_id the default account of the rail is used.
type FundingRequest struct {
	WalletID        string          `json:"wallet_id" validate:"required,uuid"`
	Rail            string          `json:"rail" validate:"required,oneof=mobile_money bank card"`
	LinkedAccountID string          `json:"linked_account_id" validate:"omitempty,uuid"`
	Amount          decimal.Decimal `json:"amount"`
	Reference       string          `json:"reference" validate:"max=128"`
}

// FundingResponse represents the API response for funding actions.
type FundingResponse struct {
	TransactionID   string          `json:"transaction_id"`
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	WalletBalance   decimal.Decimal `json:"wallet_balance"`
	LinkedAccountID string          `json:"linked_account_id,omitempty"`
	RailReference   string          `json:"rail_reference,omitempty"`
	CompletedAt     time.Time       `json:"completed_at"`
	Duplicate       bool            `json:"duplicate"`
}
