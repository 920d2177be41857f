package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
	"github.com/congo-pay/mfi_wallet/internal/notification"
	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// ErrNotOwner indicates the caller does not own the wallet being funded.
var ErrNotOwner = errors.New("not owner of wallet")

// Service coordinates top-ups and withdrawals between wallets and external
// rails.
type Service struct {
	wallets  *wallet.Service
	rail     Rail
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService prepares a funding service. A nil rail falls back to StaticRail.
func NewService(wallets *wallet.Service, rail Rail, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if rail == nil {
		rail = StaticRail{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{wallets: wallets, rail: rail, notifier: notifier, logger: logger}, nil
}

// Input captures a funding movement.
type Input struct {
	WalletID        string
	Rail            wallet.AccountType
	LinkedAccountID string
	Amount          decimal.Decimal
	Reference       string
	RequestorUserID string
}

// Result represents the domain outcome of a funding operation.
type Result struct {
	Entry         ledger.Entry
	Account       wallet.LinkedAccount
	RailReference string
	Duplicate     bool
}

// TopUp collects funds from a linked account and credits the wallet with a
// deposit. The limit policy is consulted before the rail is touched.
func (s *Service) TopUp(ctx context.Context, input Input) (Result, error) {
	w, acc, dup, err := s.prepare(ctx, &input)
	if err != nil || dup.Duplicate {
		return dup, err
	}

	decision, err := s.wallets.CanTransact(ctx, w.ID, input.Amount, ledger.TypeDeposit)
	if err != nil {
		return Result{}, err
	}
	if !decision.Allowed {
		return Result{}, &wallet.PolicyDeniedError{Reason: decision.Reason}
	}

	receipt, err := s.rail.Collect(ctx, RailRequest{Account: acc, Amount: input.Amount, Currency: w.Currency, Reference: input.Reference})
	if err != nil {
		return Result{}, err
	}

	entry, err := s.wallets.Transact(ctx, w.ID, ledger.Request{
		Type:        ledger.TypeDeposit,
		Amount:      input.Amount,
		Description: "top-up via " + acc.Provider,
		Reference:   input.Reference,
		Metadata:    railMetadata(acc, "rail_reference", receipt.Reference),
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return Result{Entry: entry, Account: acc, RailReference: receipt.Reference, Duplicate: true}, nil
	}
	if err != nil {
		s.logger.Error("collected funds not credited",
			slog.String("wallet_id", w.ID),
			slog.String("reference", input.Reference),
			slog.String("rail_reference", receipt.Reference),
			slog.Any("error", err))
		return Result{}, err
	}

	s.notify(ctx, notification.KindWalletCredited, w, entry, fmt.Sprintf("Your wallet was credited with %s %s from %s", entry.Amount.StringFixed(2), w.Currency, acc.Provider))
	return Result{Entry: entry, Account: acc, RailReference: receipt.Reference}, nil
}

// Withdraw debits the wallet with a policy-checked withdrawal and pays the
// amount out to a linked account. A declined payout is reversed with a refund
// entry.
func (s *Service) Withdraw(ctx context.Context, input Input) (Result, error) {
	w, acc, dup, err := s.prepare(ctx, &input)
	if err != nil || dup.Duplicate {
		return dup, err
	}

	entry, err := s.wallets.Transact(ctx, w.ID, ledger.Request{
		Type:        ledger.TypeWithdrawal,
		Amount:      input.Amount,
		Description: "withdrawal to " + acc.Provider,
		Reference:   input.Reference,
		Metadata:    railMetadata(acc, "payout_reference", input.Reference),
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return Result{Entry: entry, Account: acc, Duplicate: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	receipt, err := s.rail.Payout(ctx, RailRequest{Account: acc, Amount: input.Amount, Currency: w.Currency, Reference: input.Reference})
	if err != nil {
		s.reverse(ctx, w.ID, entry, err)
		return Result{}, err
	}
	s.logger.Info("payout sent",
		slog.String("wallet_id", w.ID),
		slog.String("transaction_id", entry.TransactionID),
		slog.String("payout_reference", input.Reference),
		slog.String("rail_reference", receipt.Reference))

	s.notify(ctx, notification.KindWalletDebited, w, entry, fmt.Sprintf("%s %s was sent to your %s account", entry.Amount.StringFixed(2), w.Currency, acc.Provider))
	return Result{Entry: entry, Account: acc, RailReference: receipt.Reference}, nil
}

// prepare validates input, loads the wallet and resolves the linked account.
// A reference already on the ledger short-circuits with a duplicate result.
func (s *Service) prepare(ctx context.Context, input *Input) (wallet.Wallet, wallet.LinkedAccount, Result, error) {
	if !input.Amount.IsPositive() {
		return wallet.Wallet{}, wallet.LinkedAccount{}, Result{}, &wallet.ValidationError{Field: "amount", Message: "must be positive"}
	}
	input.Reference = strings.TrimSpace(input.Reference)
	if input.Reference == "" {
		input.Reference = uuid.NewString()
	}

	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return wallet.Wallet{}, wallet.LinkedAccount{}, Result{}, err
	}
	if input.RequestorUserID != "" && w.OwnerID != input.RequestorUserID {
		return wallet.Wallet{}, wallet.LinkedAccount{}, Result{}, ErrNotOwner
	}

	existing, err := s.wallets.TransactionByReference(ctx, w.ID, input.Reference)
	switch {
	case err == nil:
		rail, _ := existing.Metadata["rail_reference"].(string)
		return w, wallet.LinkedAccount{}, Result{Entry: existing, RailReference: rail, Duplicate: true}, nil
	case !errors.Is(err, wallet.ErrEntryNotFound):
		return wallet.Wallet{}, wallet.LinkedAccount{}, Result{}, err
	}

	acc, err := resolveAccount(w, input.Rail, input.LinkedAccountID)
	if err != nil {
		return wallet.Wallet{}, wallet.LinkedAccount{}, Result{}, err
	}
	return w, acc, Result{}, nil
}

// resolveAccount picks the requested linked account, falling back to the
// default account of the rail when the id is missing or unknown.
func resolveAccount(w wallet.Wallet, rail wallet.AccountType, id string) (wallet.LinkedAccount, error) {
	if id != "" {
		if acc, ok := w.LinkedAccount(id); ok && acc.Type == rail {
			return acc, nil
		}
	}
	if acc, ok := w.DefaultAccount(rail); ok {
		return acc, nil
	}
	return wallet.LinkedAccount{}, fmt.Errorf("%w: no %s account linked", wallet.ErrAccountNotFound, rail)
}

func (s *Service) reverse(ctx context.Context, walletID string, entry ledger.Entry, cause error) {
	_, err := s.wallets.ApplyTransaction(context.WithoutCancel(ctx), walletID, ledger.Request{
		Type:        ledger.TypeRefund,
		Amount:      entry.Amount,
		Description: "withdrawal reversal",
		Reference:   entry.Reference + ":reversal",
		Metadata:    map[string]any{"reversed_transaction_id": entry.TransactionID, "cause": cause.Error()},
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		s.logger.Error("withdrawal reversal failed",
			slog.String("wallet_id", walletID),
			slog.String("transaction_id", entry.TransactionID),
			slog.Any("error", err))
		return
	}
	s.logger.Warn("withdrawal reversed",
		slog.String("wallet_id", walletID),
		slog.String("transaction_id", entry.TransactionID),
		slog.Any("cause", cause))
}

func (s *Service) notify(ctx context.Context, kind string, w wallet.Wallet, entry ledger.Entry, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: w.OwnerID,
		WalletID:    w.ID,
		Reference:   entry.Reference,
		Body:        body,
	}); err != nil {
		s.logger.Warn("funding notification failed", slog.String("reference", entry.Reference), slog.Any("error", err))
	}
}

// railMetadata describes the linked account on a ledger entry. Top-ups record
// the rail's own reference under rail_reference; withdrawals are written before
// the payout and record the reference sent to the rail under payout_reference.
func railMetadata(acc wallet.LinkedAccount, referenceKey, reference string) map[string]any {
	return map[string]any{
		"rail":              string(acc.Type),
		"provider":          acc.Provider,
		"linked_account_id": acc.ID,
		referenceKey:        reference,
	}
}
