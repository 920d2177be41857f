package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
)

type memoryRepository struct {
	mu      sync.RWMutex
	wallets map[string]Wallet
	owners  map[string]string
	entries map[string][]ledger.Entry
	refs    map[string]ledger.Entry
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		wallets: make(map[string]Wallet),
		owners:  make(map[string]string),
		entries: make(map[string][]ledger.Entry),
		refs:    make(map[string]ledger.Entry),
	}
}

func refKey(walletID, reference string) string {
	return walletID + ":" + reference
}

func (r *memoryRepository) Create(_ context.Context, w *Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.owners[w.OwnerID]; exists {
		return ErrWalletExists
	}
	if _, exists := r.wallets[w.ID]; exists {
		return ErrWalletExists
	}
	stored := *w
	stored.Ledger = nil
	stored.pending = nil
	stored.LinkedAccounts = append([]LinkedAccount(nil), w.LinkedAccounts...)
	r.wallets[w.ID] = stored
	r.owners[w.OwnerID] = w.ID
	return nil
}

func (r *memoryRepository) Load(_ context.Context, id string, ledgerSince time.Time) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadLocked(id, ledgerSince)
}

func (r *memoryRepository) FindByOwner(_ context.Context, ownerID string, ledgerSince time.Time) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[ownerID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return r.loadLocked(id, ledgerSince)
}

func (r *memoryRepository) loadLocked(id string, ledgerSince time.Time) (Wallet, error) {
	stored, ok := r.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	w := stored
	w.LinkedAccounts = append([]LinkedAccount(nil), stored.LinkedAccounts...)
	w.Ledger = nil
	for _, e := range r.entries[id] {
		if !e.CreatedAt.Before(ledgerSince) {
			w.Ledger = append(w.Ledger, e)
		}
	}
	return w, nil
}

func (r *memoryRepository) Save(_ context.Context, wallets ...*Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range wallets {
		stored, ok := r.wallets[w.ID]
		if !ok {
			return ErrWalletNotFound
		}
		if stored.Version != w.Version {
			return ErrConflict
		}
		for _, e := range w.pending {
			if e.Reference == "" {
				continue
			}
			if _, dup := r.refs[refKey(w.ID, e.Reference)]; dup {
				return ledger.ErrDuplicateTransaction
			}
		}
	}

	for _, w := range wallets {
		stored := r.wallets[w.ID]
		stored.Balance = w.Balance
		stored.Status = w.Status
		stored.Limits = w.Limits
		stored.UpdatedAt = w.UpdatedAt
		stored.Version++
		r.wallets[w.ID] = stored
		for _, e := range w.pending {
			r.entries[w.ID] = append(r.entries[w.ID], e)
			if e.Reference != "" {
				r.refs[refKey(w.ID, e.Reference)] = e
			}
		}
	}
	for _, w := range wallets {
		w.MarkPersisted()
	}
	return nil
}

func (r *memoryRepository) FindByReference(_ context.Context, walletID, reference string) (ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.refs[refKey(walletID, reference)]
	if !ok {
		return ledger.Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (r *memoryRepository) ListEntries(_ context.Context, walletID string, page ledger.PageRequest) (ledger.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.wallets[walletID]; !ok {
		return ledger.Page{}, ErrWalletNotFound
	}

	all := r.entries[walletID]
	// Insertion order breaks ties between equal timestamps, newest first.
	idx := make([]int, len(all))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ea, eb := all[idx[a]], all[idx[b]]
		if !ea.CreatedAt.Equal(eb.CreatedAt) {
			return ea.CreatedAt.After(eb.CreatedAt)
		}
		return idx[a] > idx[b]
	})

	start := page.Offset()
	if start < 0 || start > len(idx) {
		start = len(idx)
	}
	end := start + page.PageSize
	if end > len(idx) {
		end = len(idx)
	}
	entries := make([]ledger.Entry, 0, end-start)
	for _, i := range idx[start:end] {
		entries = append(entries, all[i])
	}
	return ledger.NewPage(page, entries, int64(len(all))), nil
}

func (r *memoryRepository) SaveLinkedAccount(_ context.Context, walletID string, acc LinkedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	accounts := append([]LinkedAccount(nil), stored.LinkedAccounts...)
	if acc.IsDefault {
		for i := range accounts {
			if accounts[i].Type == acc.Type {
				accounts[i].IsDefault = false
			}
		}
	}
	stored.LinkedAccounts = append(accounts, acc)
	r.wallets[walletID] = stored
	return nil
}
