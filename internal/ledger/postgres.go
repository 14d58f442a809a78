package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts and transactions in PostgreSQL. Balance
// credits ride in the same database transaction as the status write that
// authorizes them.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateAccount inserts a zero-balance account row. Re-creating an existing
// account returns the stored row unchanged.
func (s *PostgresStore) CreateAccount(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, fmt.Errorf("parse account id: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `INSERT INTO accounts (id, balance_minor_units, created_at)
        VALUES ($1, 0, $2) ON CONFLICT (id) DO NOTHING`, accountID, now)
	if err != nil {
		return Account{}, err
	}
	return s.GetAccount(ctx, id)
}

// GetAccount fetches an account row.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	var a Account
	var idVal uuid.UUID
	row := s.db.QueryRow(ctx, `SELECT id, balance_minor_units, created_at FROM accounts WHERE id = $1`, accountID)
	if err := row.Scan(&idVal, &a.BalanceMinorUnits, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	a.ID = idVal.String()
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// CreatePending records a PENDING transaction carrying the provider charge
// reference. The unique index on provider_reference rejects duplicates.
func (s *PostgresStore) CreatePending(ctx context.Context, accountID string, kind Kind, amount int64, providerRef, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("amount must be positive")
	}
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return Transaction{}, ErrAccountNotFound
	}

	tx := Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Kind:              kind,
		Status:            StatusPending,
		AmountMinorUnits:  amount,
		ProviderReference: providerRef,
		Description:       description,
		CreatedAt:         time.Now().UTC(),
	}

	_, err = s.db.Exec(ctx, `INSERT INTO transactions
        (id, account_id, kind, status, amount_minor_units, provider_reference, description, created_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		uuid.MustParse(tx.ID), acctID, string(kind), string(StatusPending), amount, providerRef, description, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, err
	}
	return tx, nil
}

// FindByProviderReference looks up the transaction bound to a provider charge.
func (s *PostgresStore) FindByProviderReference(ctx context.Context, providerRef string) (Transaction, error) {
	if providerRef == "" {
		return Transaction{}, ErrTransactionNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, account_id, kind, status, amount_minor_units,
        COALESCE(provider_reference, ''), description, created_at
        FROM transactions WHERE provider_reference = $1`, providerRef)
	return scanTransaction(row)
}

// ListTransactions returns the most recent transactions for an account.
func (s *PostgresStore) ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, account_id, kind, status, amount_minor_units,
        COALESCE(provider_reference, ''), description, created_at
        FROM transactions WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`, acctID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SettleFrom performs the status compare-and-swap and, for transitions into
// COMPLETED, the paired balance credit. Concurrent deliveries for the same
// transaction serialize on the row update: only one swap can match.
func (s *PostgresStore) SettleFrom(ctx context.Context, txID string, from, to Status) (SettleResult, error) {
	id, err := uuid.Parse(txID)
	if err != nil {
		return SettleResult{}, ErrTransactionNotFound
	}

	dbtx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SettleResult{}, err
	}
	defer dbtx.Rollback(ctx) // nolint:errcheck

	var accountID uuid.UUID
	var amount int64
	err = dbtx.QueryRow(ctx, `UPDATE transactions SET status = $1
        WHERE id = $2 AND status = $3
        RETURNING account_id, amount_minor_units`, string(to), id, string(from)).Scan(&accountID, &amount)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return SettleResult{}, err
		}
		// Swap missed: report the row as it stands now.
		var current string
		if err := s.db.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return SettleResult{}, ErrTransactionNotFound
			}
			return SettleResult{}, err
		}
		return SettleResult{Applied: false, Status: Status(current)}, nil
	}

	result := SettleResult{Applied: true, Status: to}
	if to == StatusCompleted {
		if err := dbtx.QueryRow(ctx, `UPDATE accounts
            SET balance_minor_units = balance_minor_units + $1
            WHERE id = $2 RETURNING balance_minor_units`, amount, accountID).Scan(&result.NewBalance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return SettleResult{}, ErrAccountNotFound
			}
			return SettleResult{}, err
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return SettleResult{}, err
	}
	return result, nil
}

// CreditAccount inserts an already-COMPLETED transaction and applies the
// credit in one database transaction. A provider reference collision aborts
// the whole unit with ErrDuplicateReference, suppressing double credits from
// replayed notifications.
func (s *PostgresStore) CreditAccount(ctx context.Context, accountID string, kind Kind, amount int64, providerRef, description string) (Transaction, int64, error) {
	if amount <= 0 {
		return Transaction{}, 0, fmt.Errorf("amount must be positive")
	}
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return Transaction{}, 0, ErrAccountNotFound
	}

	dbtx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, 0, err
	}
	defer dbtx.Rollback(ctx) // nolint:errcheck

	tx := Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Kind:              kind,
		Status:            StatusCompleted,
		AmountMinorUnits:  amount,
		ProviderReference: providerRef,
		Description:       description,
		CreatedAt:         time.Now().UTC(),
	}

	_, err = dbtx.Exec(ctx, `INSERT INTO transactions
        (id, account_id, kind, status, amount_minor_units, provider_reference, description, created_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		uuid.MustParse(tx.ID), acctID, string(kind), string(StatusCompleted), amount, providerRef, description, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Transaction{}, 0, ErrDuplicateReference
		}
		return Transaction{}, 0, err
	}

	var balance int64
	if err := dbtx.QueryRow(ctx, `UPDATE accounts
        SET balance_minor_units = balance_minor_units + $1
        WHERE id = $2 RETURNING balance_minor_units`, amount, acctID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, 0, ErrAccountNotFound
		}
		return Transaction{}, 0, err
	}

	if err := dbtx.Commit(ctx); err != nil {
		return Transaction{}, 0, err
	}
	return tx, balance, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tx Transaction
	var id, acctID uuid.UUID
	var kind, status string
	if err := row.Scan(&id, &acctID, &kind, &status, &tx.AmountMinorUnits, &tx.ProviderReference, &tx.Description, &tx.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	tx.ID = id.String()
	tx.AccountID = acctID.String()
	tx.Kind = Kind(kind)
	tx.Status = Status(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
