package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
)

// Repository persists wallet aggregates.
type Repository interface {
	// Create inserts a new wallet. Each owner may hold at most one wallet.
	Create(ctx context.Context, w *Wallet) error
	// Load returns the wallet with the ledger entries created at or after
	// ledgerSince and its linked accounts.
	Load(ctx context.Context, id string, ledgerSince time.Time) (Wallet, error)
	FindByOwner(ctx context.Context, ownerID string, ledgerSince time.Time) (Wallet, error)
	// Save atomically persists every wallet and its pending entries. It fails
	// with ErrConflict when any wallet's stored version no longer matches and
	// marks the wallets persisted on success.
	Save(ctx context.Context, wallets ...*Wallet) error
	FindByReference(ctx context.Context, walletID, reference string) (ledger.Entry, error)
	ListEntries(ctx context.Context, walletID string, page ledger.PageRequest) (ledger.Page, error)
	SaveLinkedAccount(ctx context.Context, walletID string, acc LinkedAccount) error
}

// DB is the subset of pgxpool.Pool used by the Postgres repositories.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// PostgresRepository stores wallets and their ledger in PostgreSQL.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, w *Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return &ValidationError{Field: "wallet_id", Message: "must be a uuid"}
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return &ValidationError{Field: "owner_id", Message: "must be a uuid"}
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, balance, currency, status, daily_limit, transaction_limit, monthly_limit, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		walletID, ownerID, w.Balance.String(), w.Currency, string(w.Status),
		w.Limits.Daily.String(), w.Limits.Transaction.String(), w.Limits.Monthly.String(),
		w.Version, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrWalletExists
		}
		return persistenceErr("insert wallet", err)
	}
	return nil
}

const selectWallet = `SELECT id, owner_id, balance::text, currency, status, daily_limit::text, transaction_limit::text, monthly_limit::text, version, created_at, updated_at
        FROM wallets`

// Load fetches a wallet with its recent ledger window.
func (r *PostgresRepository) Load(ctx context.Context, id string, ledgerSince time.Time) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	w, err := scanWallet(r.db.QueryRow(ctx, selectWallet+` WHERE id = $1`, walletID))
	if err != nil {
		return Wallet{}, err
	}
	return r.hydrate(ctx, w, ledgerSince)
}

// FindByOwner fetches the wallet owned by ownerID.
func (r *PostgresRepository) FindByOwner(ctx context.Context, ownerID string, ledgerSince time.Time) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	w, err := scanWallet(r.db.QueryRow(ctx, selectWallet+` WHERE owner_id = $1`, owner))
	if err != nil {
		return Wallet{}, err
	}
	return r.hydrate(ctx, w, ledgerSince)
}

func (r *PostgresRepository) hydrate(ctx context.Context, w Wallet, ledgerSince time.Time) (Wallet, error) {
	walletID := uuid.MustParse(w.ID)

	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+`
        FROM wallet_transactions WHERE wallet_id = $1 AND created_at >= $2
        ORDER BY created_at ASC, seq ASC`, walletID, ledgerSince.UTC())
	if err != nil {
		return Wallet{}, persistenceErr("load ledger", err)
	}
	w.Ledger, err = collectEntries(rows)
	if err != nil {
		return Wallet{}, persistenceErr("load ledger", err)
	}

	accRows, err := r.db.Query(ctx, `SELECT id, type, provider, account_number, account_name, is_default, created_at
        FROM linked_accounts WHERE wallet_id = $1 ORDER BY created_at ASC`, walletID)
	if err != nil {
		return Wallet{}, persistenceErr("load linked accounts", err)
	}
	defer accRows.Close()
	for accRows.Next() {
		var (
			acc       LinkedAccount
			id        uuid.UUID
			accType   string
			createdAt time.Time
		)
		if err := accRows.Scan(&id, &accType, &acc.Provider, &acc.AccountNumber, &acc.AccountName, &acc.IsDefault, &createdAt); err != nil {
			return Wallet{}, persistenceErr("scan linked account", err)
		}
		acc.ID = id.String()
		acc.Type = AccountType(accType)
		acc.CreatedAt = createdAt.UTC()
		w.LinkedAccounts = append(w.LinkedAccounts, acc)
	}
	if err := accRows.Err(); err != nil {
		return Wallet{}, persistenceErr("load linked accounts", err)
	}
	return w, nil
}

// Save writes the wallets and their pending entries in one transaction using
// the version column as a compare-and-swap guard.
func (r *PostgresRepository) Save(ctx context.Context, wallets ...*Wallet) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return persistenceErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, w := range wallets {
		walletID, err := uuid.Parse(w.ID)
		if err != nil {
			return ErrWalletNotFound
		}
		tag, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, status = $2, daily_limit = $3, transaction_limit = $4, monthly_limit = $5,
            version = version + 1, updated_at = $6
            WHERE id = $7 AND version = $8`,
			w.Balance.String(), string(w.Status), w.Limits.Daily.String(), w.Limits.Transaction.String(), w.Limits.Monthly.String(),
			w.UpdatedAt.UTC(), walletID, w.Version)
		if err != nil {
			return persistenceErr("update wallet", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}

		for _, e := range w.pending {
			if err := insertEntry(ctx, tx, walletID, e); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return persistenceErr("commit", err)
	}
	for _, w := range wallets {
		w.MarkPersisted()
	}
	return nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, e ledger.Entry) error {
	entryID, err := uuid.Parse(e.TransactionID)
	if err != nil {
		return &ValidationError{Field: "transaction_id", Message: "must be a uuid"}
	}
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return &ValidationError{Field: "metadata", Message: err.Error()}
		}
	}
	_, err = tx.Exec(ctx, `INSERT INTO wallet_transactions (id, wallet_id, type, amount, balance_before, balance_after, status, description, reference, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entryID, walletID, string(e.Type), e.Amount.String(), e.BalanceBefore.String(), e.BalanceAfter.String(),
		string(e.Status), e.Description, e.Reference, metadata, e.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateTransaction
		}
		return persistenceErr("insert ledger entry", err)
	}
	return nil
}

// FindByReference returns the entry recorded under reference on the wallet.
func (r *PostgresRepository) FindByReference(ctx context.Context, walletID, reference string) (ledger.Entry, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ledger.Entry{}, ErrWalletNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+`
        FROM wallet_transactions WHERE wallet_id = $1 AND reference = $2`, id, reference)
	if err != nil {
		return ledger.Entry{}, persistenceErr("find by reference", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return ledger.Entry{}, persistenceErr("find by reference", err)
	}
	if len(entries) == 0 {
		return ledger.Entry{}, ErrEntryNotFound
	}
	return entries[0], nil
}

// ListEntries pages through a wallet's ledger newest first. An unknown wallet
// is ErrWalletNotFound rather than an empty page.
func (r *PostgresRepository) ListEntries(ctx context.Context, walletID string, page ledger.PageRequest) (ledger.Page, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ledger.Page{}, ErrWalletNotFound
	}

	var (
		exists bool
		total  int64
	)
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1),
        (SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1)`, id).Scan(&exists, &total); err != nil {
		return ledger.Page{}, persistenceErr("count ledger entries", err)
	}
	if !exists {
		return ledger.Page{}, ErrWalletNotFound
	}

	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+`
        FROM wallet_transactions WHERE wallet_id = $1
        ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`, id, page.PageSize, page.Offset())
	if err != nil {
		return ledger.Page{}, persistenceErr("list ledger entries", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return ledger.Page{}, persistenceErr("list ledger entries", err)
	}
	return ledger.NewPage(page, entries, total), nil
}

// SaveLinkedAccount stores acc, clearing any other default of its type.
func (r *PostgresRepository) SaveLinkedAccount(ctx context.Context, walletID string, acc LinkedAccount) error {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrWalletNotFound
	}
	accID, err := uuid.Parse(acc.ID)
	if err != nil {
		return &ValidationError{Field: "id", Message: "must be a uuid"}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return persistenceErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if acc.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE linked_accounts SET is_default = FALSE WHERE wallet_id = $1 AND type = $2`, id, string(acc.Type)); err != nil {
			return persistenceErr("clear default account", err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO linked_accounts (id, wallet_id, type, provider, account_number, account_name, is_default, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		accID, id, string(acc.Type), acc.Provider, acc.AccountNumber, acc.AccountName, acc.IsDefault, acc.CreatedAt.UTC()); err != nil {
		return persistenceErr("insert linked account", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return persistenceErr("commit", err)
	}
	return nil
}

const entryColumns = `id, wallet_id, type, amount::text, balance_before::text, balance_after::text, status, description, reference, metadata, created_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                              Wallet
		id, owner                      uuid.UUID
		balance, daily, perTx, monthly string
		status                         string
		createdAt, updatedAt           time.Time
	)
	if err := row.Scan(&id, &owner, &balance, &w.Currency, &status, &daily, &perTx, &monthly, &w.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, persistenceErr("load wallet", err)
	}

	var err error
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return Wallet{}, persistenceErr("parse balance", err)
	}
	if w.Limits.Daily, err = decimal.NewFromString(daily); err != nil {
		return Wallet{}, persistenceErr("parse daily limit", err)
	}
	if w.Limits.Transaction, err = decimal.NewFromString(perTx); err != nil {
		return Wallet{}, persistenceErr("parse transaction limit", err)
	}
	if w.Limits.Monthly, err = decimal.NewFromString(monthly); err != nil {
		return Wallet{}, persistenceErr("parse monthly limit", err)
	}
	w.ID = id.String()
	w.OwnerID = owner.String()
	w.Status = Status(status)
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

func collectEntries(rows pgx.Rows) ([]ledger.Entry, error) {
	defer rows.Close()
	var entries []ledger.Entry
	for rows.Next() {
		var (
			e                     ledger.Entry
			id, walletID          uuid.UUID
			typ, status           string
			amount, before, after string
			metadata              []byte
			createdAt             time.Time
		)
		if err := rows.Scan(&id, &walletID, &typ, &amount, &before, &after, &status, &e.Description, &e.Reference, &metadata, &createdAt); err != nil {
			return nil, err
		}
		var err error
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if e.BalanceBefore, err = decimal.NewFromString(before); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, err
			}
			if len(e.Metadata) == 0 {
				e.Metadata = nil
			}
		}
		e.TransactionID = id.String()
		e.WalletID = walletID.String()
		e.Type = ledger.Type(typ)
		e.Status = ledger.Status(status)
		e.CreatedAt = createdAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
