// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"time"

	"mentor-points/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HistoryFilter narrows a transaction history query. Zero From/To means unbounded.
type HistoryFilter struct {
	Limit  int
	Offset int
	From   time.Time
	To     time.Time
}

// ExpiryCursor is the keyset position of the last swept candidate.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

// TransactionRepository defines the interface for transaction log operations.
type TransactionRepository interface {
	// CreateTransaction appends a transaction to the log.
	CreateTransaction(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// GetTransactionByID returns util.ErrTransactionNotFound when absent.
	GetTransactionByID(ctx context.Context, q DBExecutor, id uuid.UUID) (*domain.Transaction, error)
	// GetTransactionForUpdate is GetTransactionByID with a row lock where supported.
	GetTransactionForUpdate(ctx context.Context, q DBExecutor, id uuid.UUID) (*domain.Transaction, error)
	// MarkReversed flags the transaction reversed. It returns
	// util.ErrAlreadyReversed if another reversal got there first.
	MarkReversed(ctx context.Context, q DBExecutor, id uuid.UUID, reason string, at time.Time) error
	// GetTransactionsByOwner returns a page of the owner's history, newest first, and the total count.
	GetTransactionsByOwner(ctx context.Context, q DBExecutor, owner string, filter HistoryFilter) ([]domain.Transaction, int64, error)
	// GetDeltasByOwner returns every delta booked for owner.
	GetDeltasByOwner(ctx context.Context, q DBExecutor, owner string) ([]decimal.Decimal, error)
	// GetPeriodDeltas returns the deltas of non-reversed, non-reversal
	// transactions dated in [start, end).
	GetPeriodDeltas(ctx context.Context, q DBExecutor, owner string, start, end time.Time) ([]decimal.Decimal, error)
	// GetExpiredCandidates returns up to limit unreversed, expiring, non-reversal
	// transactions with expires_at <= now, ordered by (expires_at, id) after cursor.
	GetExpiredCandidates(ctx context.Context, q DBExecutor, now time.Time, after *ExpiryCursor, limit int) ([]domain.Transaction, error)
}
