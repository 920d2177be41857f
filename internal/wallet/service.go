package wallet

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
)

// Settings carries wallet defaults and retry behaviour.
type Settings struct {
	DefaultCurrency string
	DefaultLimits   Limits
	// ConflictRetries bounds how often Transact and Transfer reload and retry
	// after a version conflict.
	ConflictRetries int
}

// Service is the only mutation path for wallet balances.
type Service struct {
	repo     Repository
	policy   Policy
	settings Settings
	locks    *Locker
	logger   *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, policy Policy, settings Settings, logger *slog.Logger) *Service {
	if settings.DefaultCurrency == "" {
		settings.DefaultCurrency = "XAF"
	}
	if settings.ConflictRetries < 0 {
		settings.ConflictRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, policy: policy, settings: settings, locks: NewLocker(), logger: logger}
}

func (s *Service) now() time.Time {
	if s.policy.Now != nil {
		return s.policy.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
	Limits   Limits
}

// Create provisions a wallet for an owner. An owner holds at most one wallet.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, &ValidationError{Field: "owner_id", Message: "must be a uuid"}
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.settings.DefaultCurrency
	}

	limits := input.Limits.withDefaults(s.settings.DefaultLimits)
	if err := limits.validate(); err != nil {
		return Wallet{}, err
	}

	now := s.now()
	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   input.OwnerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		Status:    StatusActive,
		Limits:    limits,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, &w); err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet created", slog.String("wallet_id", w.ID), slog.String("owner_id", w.OwnerID))
	return w, nil
}

// EnsureForOwner returns the owner's wallet, creating it on first use.
func (s *Service) EnsureForOwner(ctx context.Context, ownerID string) (Wallet, error) {
	w, err := s.FindByOwner(ctx, ownerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, err
	}
	w, err = s.Create(ctx, CreateInput{OwnerID: ownerID})
	if errors.Is(err, ErrWalletExists) {
		return s.FindByOwner(ctx, ownerID)
	}
	return w, err
}

// Get retrieves a wallet with its recent ledger window.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Load(ctx, id, s.policy.WindowStart())
}

// FindByOwner returns the single wallet of ownerID or ErrWalletNotFound.
func (s *Service) FindByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.FindByOwner(ctx, ownerID, s.policy.WindowStart())
}

// Balance returns the current wallet balance.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: w.Balance, Currency: w.Currency, AsOf: s.now()}, nil
}

// CanTransact evaluates the limit policy against the stored wallet state.
func (s *Service) CanTransact(ctx context.Context, walletID string, amount decimal.Decimal, typ ledger.Type) (Decision, error) {
	if _, err := ledger.ParseType(string(typ)); err != nil {
		return Decision{}, &ValidationError{Field: "type", Message: err.Error()}
	}
	w, err := s.Get(ctx, walletID)
	if err != nil {
		return Decision{}, err
	}
	return s.policy.CanTransact(w, amount, typ), nil
}

// ApplyTransaction appends req to the wallet ledger without consulting the
// limit policy. Concurrent calls on the same wallet are serialized; a version
// conflict with another process surfaces as ErrConflict. Closed wallets
// refuse everything and inactive ones refuse debits with ErrWalletInactive.
func (s *Service) ApplyTransaction(ctx context.Context, walletID string, req ledger.Request) (ledger.Entry, error) {
	timer := prometheus.NewTimer(applyDurationHist.WithLabelValues("apply"))
	defer timer.ObserveDuration()

	if err := validateRequest(req); err != nil {
		return ledger.Entry{}, err
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.Get(ctx, walletID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if existing, dup, err := s.duplicate(ctx, w.ID, req.Reference); err != nil || dup {
		return existing, err
	}
	if err := w.acceptsRaw(req.Type); err != nil {
		return ledger.Entry{}, err
	}

	entry, err := w.Apply(req, s.now())
	if err != nil {
		return ledger.Entry{}, err
	}
	if err := s.save(ctx, &w); err != nil {
		return ledger.Entry{}, err
	}
	transactionsAppliedCounter.WithLabelValues(string(entry.Type)).Inc()
	return entry, nil
}

// Transact runs the limit policy and applies req while holding the wallet
// lock, so no other writer can change the balance between the decision and
// the mutation. A denial is returned as *PolicyDeniedError.
func (s *Service) Transact(ctx context.Context, walletID string, req ledger.Request) (ledger.Entry, error) {
	timer := prometheus.NewTimer(applyDurationHist.WithLabelValues("transact"))
	defer timer.ObserveDuration()

	if err := validateRequest(req); err != nil {
		return ledger.Entry{}, err
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		w, err := s.Get(ctx, walletID)
		if err != nil {
			return ledger.Entry{}, err
		}
		if existing, dup, err := s.duplicate(ctx, w.ID, req.Reference); err != nil || dup {
			return existing, err
		}

		if decision := s.policy.CanTransact(w, req.Amount, req.Type); !decision.Allowed {
			policyDenialsCounter.WithLabelValues(decision.Reason).Inc()
			return ledger.Entry{}, &PolicyDeniedError{Reason: decision.Reason}
		}

		entry, err := w.Apply(req, s.now())
		if err != nil {
			return ledger.Entry{}, err
		}
		err = s.save(ctx, &w)
		if errors.Is(err, ErrConflict) && attempt < s.settings.ConflictRetries {
			s.logger.Warn("wallet version conflict, retrying",
				slog.String("wallet_id", walletID), slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return ledger.Entry{}, err
		}
		transactionsAppliedCounter.WithLabelValues(string(entry.Type)).Inc()
		return entry, nil
	}
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	FromWalletID string
	ToWalletID   string
	Amount       decimal.Decimal
	Reference    string
	Description  string
	Metadata     map[string]any
}

// TransferResult holds both sides of a transfer.
type TransferResult struct {
	Debit  ledger.Entry
	Credit ledger.Entry
}

// Transfer debits the source wallet with a transfer entry and credits the
// destination with a deposit entry under the same reference. Both wallets are
// locked in ascending id order and persisted together.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	timer := prometheus.NewTimer(applyDurationHist.WithLabelValues("transfer"))
	defer timer.ObserveDuration()

	if !input.Amount.IsPositive() {
		return TransferResult{}, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if input.FromWalletID == "" || input.ToWalletID == "" {
		return TransferResult{}, &ValidationError{Field: "wallet_id", Message: "source and destination are required"}
	}
	if input.FromWalletID == input.ToWalletID {
		return TransferResult{}, &ValidationError{Field: "to_wallet_id", Message: "must differ from source wallet"}
	}
	if input.Reference == "" {
		input.Reference = uuid.NewString()
	}

	unlock := s.locks.Lock(input.FromWalletID, input.ToWalletID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		src, err := s.Get(ctx, input.FromWalletID)
		if err != nil {
			return TransferResult{}, err
		}
		dst, err := s.Get(ctx, input.ToWalletID)
		if err != nil {
			return TransferResult{}, err
		}

		prevDebit, debitDup, err := s.duplicate(ctx, src.ID, input.Reference)
		if err != nil && !debitDup {
			return TransferResult{}, err
		}
		prevCredit, creditDup, err := s.duplicate(ctx, dst.ID, input.Reference)
		if err != nil && !creditDup {
			return TransferResult{}, err
		}
		switch {
		case debitDup && creditDup:
			return TransferResult{Debit: prevDebit, Credit: prevCredit}, ledger.ErrDuplicateTransaction
		case debitDup || creditDup:
			return TransferResult{}, &ValidationError{Field: "reference", Message: "already used by another transaction"}
		}

		if src.Currency != dst.Currency {
			return TransferResult{}, &ValidationError{Field: "currency", Message: "wallets hold different currencies"}
		}
		if decision := s.policy.CanTransact(src, input.Amount, ledger.TypeTransfer); !decision.Allowed {
			policyDenialsCounter.WithLabelValues(decision.Reason).Inc()
			return TransferResult{}, &PolicyDeniedError{Reason: decision.Reason}
		}
		if decision := s.policy.CanTransact(dst, input.Amount, ledger.TypeDeposit); !decision.Allowed {
			policyDenialsCounter.WithLabelValues(decision.Reason).Inc()
			return TransferResult{}, &PolicyDeniedError{Reason: "recipient " + decision.Reason}
		}

		now := s.now()
		debit, err := src.Apply(ledger.Request{
			Type:        ledger.TypeTransfer,
			Amount:      input.Amount,
			Description: input.Description,
			Reference:   input.Reference,
			Metadata:    withCounterparty(input.Metadata, dst.ID),
		}, now)
		if err != nil {
			return TransferResult{}, err
		}
		credit, err := dst.Apply(ledger.Request{
			Type:        ledger.TypeDeposit,
			Amount:      input.Amount,
			Description: input.Description,
			Reference:   input.Reference,
			Metadata:    withCounterparty(input.Metadata, src.ID),
		}, now)
		if err != nil {
			return TransferResult{}, err
		}

		err = s.save(ctx, &src, &dst)
		if errors.Is(err, ErrConflict) && attempt < s.settings.ConflictRetries {
			s.logger.Warn("transfer version conflict, retrying",
				slog.String("from_wallet_id", src.ID), slog.String("to_wallet_id", dst.ID), slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return TransferResult{}, err
		}
		transactionsAppliedCounter.WithLabelValues(string(debit.Type)).Inc()
		transactionsAppliedCounter.WithLabelValues(string(credit.Type)).Inc()
		return TransferResult{Debit: debit, Credit: credit}, nil
	}
}

func withCounterparty(metadata map[string]any, counterparty string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["counterparty_wallet_id"] = counterparty
	return out
}

// UpdateStatus moves a wallet between lifecycle states. Closed wallets stay
// closed.
func (s *Service) UpdateStatus(ctx context.Context, walletID string, status Status) (Wallet, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Wallet{}, err
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.Get(ctx, walletID)
	if err != nil {
		return Wallet{}, err
	}
	from := w.Status
	if err := w.transition(status, s.now()); err != nil {
		return Wallet{}, err
	}
	if err := s.save(ctx, &w); err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet status changed",
		slog.String("wallet_id", w.ID), slog.String("from", string(from)), slog.String("to", string(w.Status)))
	return w, nil
}

// UpdateLimits replaces the non-zero limits in input.
func (s *Service) UpdateLimits(ctx context.Context, walletID string, input Limits) (Wallet, error) {
	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.Get(ctx, walletID)
	if err != nil {
		return Wallet{}, err
	}
	limits := input.withDefaults(w.Limits)
	if err := limits.validate(); err != nil {
		return Wallet{}, err
	}
	w.Limits = limits
	w.UpdatedAt = s.now()
	if err := s.save(ctx, &w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// LinkAccountInput describes an external account to attach.
type LinkAccountInput struct {
	Type          AccountType
	Provider      string
	AccountNumber string
	AccountName   string
	IsDefault     bool
}

// LinkAccount attaches an external payment rail to the wallet. At most one
// account per type is the default.
func (s *Service) LinkAccount(ctx context.Context, walletID string, input LinkAccountInput) (LinkedAccount, error) {
	switch input.Type {
	case AccountMobileMoney, AccountBank, AccountCard:
	default:
		return LinkedAccount{}, &ValidationError{Field: "type", Message: "unknown account type " + string(input.Type)}
	}
	if strings.TrimSpace(input.Provider) == "" {
		return LinkedAccount{}, &ValidationError{Field: "provider", Message: "is required"}
	}
	if strings.TrimSpace(input.AccountNumber) == "" {
		return LinkedAccount{}, &ValidationError{Field: "account_number", Message: "is required"}
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.Get(ctx, walletID)
	if err != nil {
		return LinkedAccount{}, err
	}
	acc := w.linkAccount(LinkedAccount{
		ID:            uuid.NewString(),
		Type:          input.Type,
		Provider:      strings.TrimSpace(input.Provider),
		AccountNumber: strings.TrimSpace(input.AccountNumber),
		AccountName:   strings.TrimSpace(input.AccountName),
		IsDefault:     input.IsDefault,
		CreatedAt:     s.now(),
	})
	if err := s.repo.SaveLinkedAccount(ctx, w.ID, acc); err != nil {
		return LinkedAccount{}, err
	}
	return acc, nil
}

// LinkedAccounts lists the external accounts attached to a wallet.
func (s *Service) LinkedAccounts(ctx context.Context, walletID string) ([]LinkedAccount, error) {
	w, err := s.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return w.LinkedAccounts, nil
}

// GetTransactions returns one page of the wallet ledger, newest first.
func (s *Service) GetTransactions(ctx context.Context, walletID string, page, pageSize int) (ledger.Page, error) {
	return s.repo.ListEntries(ctx, walletID, ledger.NewPageRequest(page, pageSize))
}

// TransactionByReference returns the entry recorded under reference or
// ErrEntryNotFound.
func (s *Service) TransactionByReference(ctx context.Context, walletID, reference string) (ledger.Entry, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ledger.Entry{}, ErrEntryNotFound
	}
	return s.repo.FindByReference(ctx, walletID, reference)
}

// duplicate looks up an entry already recorded under reference.
func (s *Service) duplicate(ctx context.Context, walletID, reference string) (ledger.Entry, bool, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ledger.Entry{}, false, nil
	}
	existing, err := s.repo.FindByReference(ctx, walletID, reference)
	switch {
	case err == nil:
		return existing, true, ledger.ErrDuplicateTransaction
	case errors.Is(err, ErrEntryNotFound):
		return ledger.Entry{}, false, nil
	default:
		return ledger.Entry{}, false, err
	}
}

// save persists the wallets in ascending id order. Once persistence starts it
// is not cancelled by the caller's context.
func (s *Service) save(ctx context.Context, wallets ...*Wallet) error {
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].ID < wallets[j].ID })
	err := s.repo.Save(context.WithoutCancel(ctx), wallets...)
	if errors.Is(err, ErrConflict) {
		conflictsCounter.Inc()
	}
	return err
}
