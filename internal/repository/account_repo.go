// internal/repository/account_repo.go
package repository

import (
	"context"

	"mentor-points/internal/domain"
)

// AccountRepository defines the interface for points account data operations.
type AccountRepository interface {
	// EnsureAccount returns the owner's account, creating a zero-balance one
	// if none exists. Concurrent calls for the same owner yield one row.
	EnsureAccount(ctx context.Context, q DBExecutor, owner string) (*domain.Account, error)
	// GetAccountByOwner returns util.ErrAccountNotFound when the owner has no account.
	GetAccountByOwner(ctx context.Context, q DBExecutor, owner string) (*domain.Account, error)
	// GetAccountForUpdate reads the account and, where the dialect allows it,
	// row-locks it until the surrounding transaction ends.
	GetAccountForUpdate(ctx context.Context, q DBExecutor, owner string) (*domain.Account, error)
	// UpdateAccountTotals persists balance, lifetime counters and activity timestamps.
	UpdateAccountTotals(ctx context.Context, q DBExecutor, account *domain.Account) error
}
