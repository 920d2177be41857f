package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
	"github.com/congo-pay/mfi_wallet/internal/logging"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	if repo == nil {
		repo = NewMemoryRepository()
	}
	clock := &stepClock{t: fixedNow}
	policy := NewPolicy(time.UTC, true)
	policy.Now = clock.Now
	return NewService(repo, policy, Settings{
		DefaultCurrency: "XAF",
		DefaultLimits: Limits{
			Daily:       dec(10_000_000),
			Transaction: dec(5_000_000),
			Monthly:     dec(100_000_000),
		},
		ConflictRetries: 3,
	}, logging.Discard())
}

func createFunded(t *testing.T, svc *Service, amount int64) Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString()})
	require.NoError(t, err)
	if amount > 0 {
		_, err = svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(amount)})
		require.NoError(t, err)
	}
	return w
}

func TestServiceCreateAndFindByOwner(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	ownerID := uuid.NewString()

	w, err := svc.Create(ctx, CreateInput{OwnerID: ownerID})
	require.NoError(t, err)
	assert.Equal(t, "XAF", w.Currency)
	assert.Equal(t, StatusActive, w.Status)
	assert.True(t, w.Balance.IsZero())
	assert.True(t, w.Limits.Daily.Equal(dec(10_000_000)))

	found, err := svc.FindByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, found.ID)

	_, err = svc.Create(ctx, CreateInput{OwnerID: ownerID})
	assert.ErrorIs(t, err, ErrWalletExists)

	_, err = svc.FindByOwner(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestServiceCreateValidatesInput(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{OwnerID: "not-a-uuid"})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "owner_id", vErr.Field)

	_, err = svc.Create(ctx, CreateInput{OwnerID: uuid.NewString(), Limits: Limits{Daily: dec(-1)}})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "daily_limit", vErr.Field)
}

func TestServiceEnsureForOwnerCreatesLazily(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	ownerID := uuid.NewString()

	first, err := svc.EnsureForOwner(ctx, ownerID)
	require.NoError(t, err)
	second, err := svc.EnsureForOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestServiceApplyTransactionDeposit(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 0)

	entry, err := svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(50_000)})
	require.NoError(t, err)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(dec(50_000)))

	bal, err := svc.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(dec(50_000)))
}

func TestServiceApplyTransactionBypassesPolicy(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 0)

	_, err := svc.UpdateLimits(ctx, w.ID, Limits{Transaction: dec(100)})
	require.NoError(t, err)

	_, err = svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(1_000)})
	require.NoError(t, err)

	_, err = svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(1_000)})
	reason, denied := IsPolicyDenied(err)
	require.True(t, denied)
	assert.Equal(t, ReasonExceedsTransactionLimit, reason)
}

func TestServiceTransactDeniedLeavesWalletUntouched(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 100_000)

	_, err := svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeWithdrawal, Amount: dec(150_000)})
	var denied *PolicyDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonInsufficientBalance, denied.Reason)

	page, err := svc.GetTransactions(ctx, w.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	bal, err := svc.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(dec(100_000)))
}

func TestServiceCanTransact(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 5_000_000)

	_, err := svc.UpdateLimits(ctx, w.ID, Limits{Transaction: dec(2_000_000)})
	require.NoError(t, err)

	decision, err := svc.CanTransact(ctx, w.ID, dec(2_500_000), ledger.TypeWithdrawal)
	require.NoError(t, err)
	assert.Equal(t, Decision{Reason: ReasonExceedsTransactionLimit}, decision)

	decision, err = svc.CanTransact(ctx, w.ID, dec(1_000), ledger.TypeWithdrawal)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	_, err = svc.CanTransact(ctx, uuid.NewString(), dec(1), ledger.TypeDeposit)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestServiceDailyLimitAccumulatesDeposits(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 0)

	_, err := svc.UpdateLimits(ctx, w.ID, Limits{Daily: dec(1_000_000)})
	require.NoError(t, err)

	_, err = svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(400_000)})
	require.NoError(t, err)
	_, err = svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(500_000)})
	require.NoError(t, err)

	decision, err := svc.CanTransact(ctx, w.ID, dec(200_000), ledger.TypeDeposit)
	require.NoError(t, err)
	assert.Equal(t, Decision{Reason: ReasonExceedsDailyLimit}, decision)
}

func TestServiceConcurrentWithdrawalsSerialize(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 100)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		denials   int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeWithdrawal, Amount: dec(60)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if _, ok := IsPolicyDenied(err); ok {
				denials++
				return
			}
			t.Errorf("unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, denials)

	bal, err := svc.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(dec(40)))
}

func TestServiceConcurrentDepositsDoNotLoseUpdates(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 0)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.ApplyTransaction(ctx, w.ID, ledger.Request{
				Type:      ledger.TypeDeposit,
				Amount:    dec(10),
				Reference: fmt.Sprintf("dep-%d", i),
			}); err != nil {
				t.Errorf("deposit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	loaded, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Balance.Equal(dec(500)))
	require.Len(t, loaded.Ledger, workers)
	for i, e := range loaded.Ledger {
		assert.True(t, e.Delta().Equal(ledger.Signed(e.Type, e.Amount)))
		if i > 0 {
			assert.True(t, e.BalanceBefore.Equal(loaded.Ledger[i-1].BalanceAfter), "entry %d chains", i)
		}
	}
	assert.True(t, loaded.Balance.Equal(loaded.Ledger[workers-1].BalanceAfter))
}

func TestServiceDuplicateReferenceIsIdempotent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 0)

	req := ledger.Request{Type: ledger.TypeDeposit, Amount: dec(700), Reference: "mm-ref-1"}
	first, err := svc.Transact(ctx, w.ID, req)
	require.NoError(t, err)

	second, err := svc.Transact(ctx, w.ID, req)
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	third, err := svc.ApplyTransaction(ctx, w.ID, req)
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
	assert.Equal(t, first.TransactionID, third.TransactionID)

	bal, err := svc.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(dec(700)))
}

func TestServiceGetTransactionsPagesNewestFirst(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 0)

	for i := 1; i <= 25; i++ {
		_, err := svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(int64(i))})
		require.NoError(t, err)
	}

	page, err := svc.GetTransactions(ctx, w.ID, 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 25, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, ledger.DefaultPageSize, page.PageSize)
	require.Len(t, page.Entries, 10)
	assert.True(t, page.Entries[0].Amount.Equal(dec(25)))
	for i := 1; i < len(page.Entries); i++ {
		assert.False(t, page.Entries[i].CreatedAt.After(page.Entries[i-1].CreatedAt))
	}

	last, err := svc.GetTransactions(ctx, w.ID, 3, 10)
	require.NoError(t, err)
	require.Len(t, last.Entries, 5)
	assert.True(t, last.Entries[4].Amount.Equal(dec(1)))

	beyond, err := svc.GetTransactions(ctx, w.ID, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond.Entries)
}

func TestServiceTransfer(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	from := createFunded(t, svc, 1_000)
	to := createFunded(t, svc, 0)

	res, err := svc.Transfer(ctx, TransferInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: dec(300), Reference: "p2p-1"})
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeTransfer, res.Debit.Type)
	assert.Equal(t, ledger.TypeDeposit, res.Credit.Type)
	assert.True(t, res.Debit.BalanceAfter.Equal(dec(700)))
	assert.True(t, res.Credit.BalanceAfter.Equal(dec(300)))
	assert.Equal(t, to.ID, res.Debit.Metadata["counterparty_wallet_id"])
	assert.Equal(t, from.ID, res.Credit.Metadata["counterparty_wallet_id"])

	again, err := svc.Transfer(ctx, TransferInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: dec(300), Reference: "p2p-1"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
	assert.Equal(t, res.Debit.TransactionID, again.Debit.TransactionID)

	bal, err := svc.Balance(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(dec(700)))
}

func TestServiceTransferDenied(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	from := createFunded(t, svc, 100)
	to := createFunded(t, svc, 0)

	_, err := svc.Transfer(ctx, TransferInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: dec(300)})
	reason, denied := IsPolicyDenied(err)
	require.True(t, denied)
	assert.Equal(t, ReasonInsufficientBalance, reason)

	_, err = svc.UpdateStatus(ctx, to.ID, StatusFrozen)
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: dec(50)})
	reason, denied = IsPolicyDenied(err)
	require.True(t, denied)
	assert.Equal(t, "recipient "+ReasonNotActive, reason)

	_, err = svc.Transfer(ctx, TransferInput{FromWalletID: from.ID, ToWalletID: from.ID, Amount: dec(50)})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestServiceOpposingTransfersConserveFunds(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	a := createFunded(t, svc, 10_000)
	b := createFunded(t, svc, 10_000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, TransferInput{FromWalletID: a.ID, ToWalletID: b.ID, Amount: dec(10)})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, TransferInput{FromWalletID: b.ID, ToWalletID: a.ID, Amount: dec(10)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balA, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	balB, err := svc.Balance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balA.Amount.Add(balB.Amount).Equal(dec(20_000)))
}

func TestServiceStatusLifecycle(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 500)

	_, err := svc.UpdateStatus(ctx, w.ID, StatusSuspended)
	require.NoError(t, err)

	_, err = svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(10)})
	reason, denied := IsPolicyDenied(err)
	require.True(t, denied)
	assert.Equal(t, ReasonNotActive, reason)

	_, err = svc.UpdateStatus(ctx, w.ID, StatusActive)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, w.ID, StatusClosed)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, w.ID, StatusActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, w.ID, Status("deleted"))
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestServiceLinkAccount(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 0)

	first, err := svc.LinkAccount(ctx, w.ID, LinkAccountInput{Type: AccountMobileMoney, Provider: "mtn", AccountNumber: "256770000001"})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := svc.LinkAccount(ctx, w.ID, LinkAccountInput{Type: AccountMobileMoney, Provider: "airtel", AccountNumber: "256750000001", IsDefault: true})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	accounts, err := svc.LinkedAccounts(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	for _, acc := range accounts {
		assert.Equal(t, acc.ID == second.ID, acc.IsDefault, "account %s", acc.Provider)
	}

	_, err = svc.LinkAccount(ctx, w.ID, LinkAccountInput{Type: "crypto", Provider: "x", AccountNumber: "1"})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

// conflictRepository fails the first n saves with ErrConflict.
type conflictRepository struct {
	Repository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictRepository) Save(ctx context.Context, wallets ...*Wallet) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return ErrConflict
	}
	r.mu.Unlock()
	return r.Repository.Save(ctx, wallets...)
}

func TestServiceTransactRetriesOnConflict(t *testing.T) {
	repo := &conflictRepository{Repository: NewMemoryRepository()}
	svc := newTestService(t, repo)
	ctx := context.Background()
	w := createFunded(t, svc, 100)

	repo.conflicts = 2
	entry, err := svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeWithdrawal, Amount: dec(60)})
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(dec(40)))

	repo.conflicts = 1
	_, err = svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(1)})
	assert.ErrorIs(t, err, ErrConflict)

	repo.conflicts = 10
	_, err = svc.Transact(ctx, w.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(1)})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryRepositoryRejectsStaleVersion(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(t, repo)
	ctx := context.Background()
	w := createFunded(t, svc, 100)

	since := time.Time{}
	first, err := repo.Load(ctx, w.ID, since)
	require.NoError(t, err)
	stale, err := repo.Load(ctx, w.ID, since)
	require.NoError(t, err)

	_, err = first.Apply(ledger.Request{Type: ledger.TypeWithdrawal, Amount: dec(60)}, fixedNow)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, &first))

	_, err = stale.Apply(ledger.Request{Type: ledger.TypeWithdrawal, Amount: dec(60)}, fixedNow)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, &stale), ErrConflict)

	loaded, err := repo.Load(ctx, w.ID, since)
	require.NoError(t, err)
	assert.True(t, loaded.Balance.Equal(dec(40)))
}

func TestServiceGetTransactionsFarBeyondLastPage(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 100)

	page, err := svc.GetTransactions(ctx, w.ID, math.MaxInt/5, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.EqualValues(t, 1, page.Total)
}

func TestServiceTransferReferenceUsedOnOneSideOnly(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	from := createFunded(t, svc, 500)
	to := createFunded(t, svc, 0)

	_, err := svc.ApplyTransaction(ctx, to.ID, ledger.Request{Type: ledger.TypeDeposit, Amount: dec(20), Reference: "order-7"})
	require.NoError(t, err)

	res, err := svc.Transfer(ctx, TransferInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: dec(100), Reference: "order-7"})
	assert.NotErrorIs(t, err, ledger.ErrDuplicateTransaction)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "reference", vErr.Field)
	assert.Empty(t, res.Debit.TransactionID)

	bal, err := svc.Balance(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(dec(500)))
}

type failingLookupRepository struct {
	Repository
	walletID string
}

func (r failingLookupRepository) FindByReference(ctx context.Context, walletID, reference string) (ledger.Entry, error) {
	if walletID == r.walletID {
		return ledger.Entry{}, &PersistenceError{Op: "find by reference", Err: errors.New("connection reset")}
	}
	return r.Repository.FindByReference(ctx, walletID, reference)
}

func TestServiceTransferPropagatesDestinationLookupError(t *testing.T) {
	repo := NewMemoryRepository()
	seed := newTestService(t, repo)
	from := createFunded(t, seed, 500)
	to := createFunded(t, seed, 0)

	svc := newTestService(t, failingLookupRepository{Repository: repo, walletID: to.ID})
	_, err := svc.Transfer(context.Background(), TransferInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: dec(100), Reference: "p2p-9"})
	var pErr *PersistenceError
	assert.True(t, errors.As(err, &pErr))
}

func TestServiceApplyTransactionHonoursStatus(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	w := createFunded(t, svc, 500)

	_, err := svc.UpdateStatus(ctx, w.ID, StatusFrozen)
	require.NoError(t, err)
	_, err = svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeWithdrawal, Amount: dec(10)})
	assert.ErrorIs(t, err, ErrWalletInactive)
	refund, err := svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeRefund, Amount: dec(10), Reference: "wd-1:reversal"})
	require.NoError(t, err)
	assert.True(t, refund.BalanceAfter.Equal(dec(510)))

	_, err = svc.UpdateStatus(ctx, w.ID, StatusClosed)
	require.NoError(t, err)
	_, err = svc.ApplyTransaction(ctx, w.ID, ledger.Request{Type: ledger.TypeRefund, Amount: dec(10)})
	assert.ErrorIs(t, err, ErrWalletInactive)
	assert.Equal(t, 409, StatusCode(err))
}
