// internal/repository/sqlstore/account_sql.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mentor-points/internal/domain"
	"mentor-points/internal/repository"
	"mentor-points/internal/util"
)

const accountColumns = `id, owner, balance, lifetime_earned, lifetime_spent, last_activity_at, created_at, updated_at`

// AccountRepository implements repository.AccountRepository on SQL.
type AccountRepository struct {
	dialect Dialect
}

// NewAccountRepository creates a new AccountRepository for the given dialect.
func NewAccountRepository(dialect Dialect) repository.AccountRepository {
	return &AccountRepository{dialect: dialect}
}

// EnsureAccount inserts a zero-balance account unless one already exists for
// owner, then reads it back. ON CONFLICT makes concurrent first use safe.
func (r *AccountRepository) EnsureAccount(ctx context.Context, q repository.DBExecutor, owner string) (*domain.Account, error) {
	account := domain.NewAccount(owner, time.Now().UTC())
	query := q.Rebind(`INSERT INTO point_accounts (id, owner, balance, lifetime_earned, lifetime_spent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (owner) DO NOTHING`)
	_, err := q.ExecContext(ctx, query,
		account.ID,
		account.Owner,
		account.Balance,
		account.LifetimeEarned,
		account.LifetimeSpent,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account for owner %q: %w", owner, err)
	}
	return r.getAccount(ctx, q, owner, "")
}

// GetAccountByOwner retrieves the owner's account.
func (r *AccountRepository) GetAccountByOwner(ctx context.Context, q repository.DBExecutor, owner string) (*domain.Account, error) {
	return r.getAccount(ctx, q, owner, "")
}

// GetAccountForUpdate retrieves the owner's account holding a row lock.
func (r *AccountRepository) GetAccountForUpdate(ctx context.Context, q repository.DBExecutor, owner string) (*domain.Account, error) {
	return r.getAccount(ctx, q, owner, r.dialect.forUpdate)
}

func (r *AccountRepository) getAccount(ctx context.Context, q repository.DBExecutor, owner, suffix string) (*domain.Account, error) {
	var account domain.Account
	query := q.Rebind(`SELECT ` + accountColumns + ` FROM point_accounts WHERE owner = ?` + suffix)
	if err := q.GetContext(ctx, &account, query, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account for owner %q: %w", owner, err)
	}
	return &account, nil
}

// UpdateAccountTotals writes the account's balance, lifetime counters and timestamps.
func (r *AccountRepository) UpdateAccountTotals(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	query := q.Rebind(`UPDATE point_accounts
		SET balance = ?, lifetime_earned = ?, lifetime_spent = ?, last_activity_at = ?, updated_at = ?
		WHERE id = ?`)
	result, err := q.ExecContext(ctx, query,
		account.Balance,
		account.LifetimeEarned,
		account.LifetimeSpent,
		account.LastActivityAt,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account totals for owner %q: %w", account.Owner, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating account %s: %w", account.ID, err)
	}
	if rowsAffected == 0 {
		return util.ErrAccountNotFound
	}
	return nil
}
