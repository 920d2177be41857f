package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
	"github.com/congo-pay/mfi_wallet/internal/notification"
	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// ErrNotOwner indicates the caller does not own the source wallet.
var ErrNotOwner = errors.New("not owner of source wallet")

// Service moves money between member wallets.
type Service struct {
	wallets  *wallet.Service
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service.
func NewService(wallets *wallet.Service, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{wallets: wallets, notifier: notifier, logger: logger}
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	FromWalletID    string
	ToWalletID      string
	Amount          decimal.Decimal
	Reference       string
	Description     string
	RequestorUserID string
}

// TransferResult describes the outcome of a P2P transfer.
type TransferResult struct {
	Reference     string
	DebitEntryID  string
	CreditEntryID string
	FromBalance   decimal.Decimal
	ToBalance     decimal.Decimal
	CompletedAt   time.Time
	Duplicate     bool
}

// Transfer moves funds from the requestor's wallet to another wallet. A
// replayed reference returns the original outcome with Duplicate set.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	from, err := s.wallets.Get(ctx, input.FromWalletID)
	if err != nil {
		return TransferResult{}, err
	}
	if input.RequestorUserID != "" && from.OwnerID != input.RequestorUserID {
		return TransferResult{}, ErrNotOwner
	}

	res, err := s.wallets.Transfer(ctx, wallet.TransferInput{
		FromWalletID: input.FromWalletID,
		ToWalletID:   input.ToWalletID,
		Amount:       input.Amount,
		Reference:    input.Reference,
		Description:  input.Description,
		Metadata:     map[string]any{"channel": "p2p"},
	})
	duplicate := errors.Is(err, ledger.ErrDuplicateTransaction)
	if err != nil && !duplicate {
		return TransferResult{}, err
	}

	outcome := TransferResult{
		Reference:     res.Debit.Reference,
		DebitEntryID:  res.Debit.TransactionID,
		CreditEntryID: res.Credit.TransactionID,
		FromBalance:   res.Debit.BalanceAfter,
		ToBalance:     res.Credit.BalanceAfter,
		CompletedAt:   res.Debit.CreatedAt,
		Duplicate:     duplicate,
	}
	if duplicate {
		return outcome, nil
	}

	s.notify(ctx, input, from, outcome)
	return outcome, nil
}

func (s *Service) notify(ctx context.Context, input TransferInput, from wallet.Wallet, outcome TransferResult) {
	if s.notifier == nil {
		return
	}
	to, err := s.wallets.Get(ctx, input.ToWalletID)
	if err != nil {
		s.logger.Warn("p2p notification skipped", slog.String("reference", outcome.Reference), slog.Any("error", err))
		return
	}
	amount := input.Amount.StringFixed(2)
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindP2PTransfer,
		Destination: to.OwnerID,
		WalletID:    to.ID,
		Reference:   outcome.Reference,
		Body:        fmt.Sprintf("You received %s %s from wallet %s", amount, to.Currency, from.ID),
	}); err != nil {
		s.logger.Warn("p2p notification failed", slog.String("reference", outcome.Reference), slog.Any("error", err))
	}
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindWalletDebited,
		Destination: from.OwnerID,
		WalletID:    from.ID,
		Reference:   outcome.Reference,
		Body:        fmt.Sprintf("You sent %s %s to wallet %s", amount, from.Currency, to.ID),
	}); err != nil {
		s.logger.Warn("p2p notification failed", slog.String("reference", outcome.Reference), slog.Any("error", err))
	}
}
