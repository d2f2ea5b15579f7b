// internal/repository/sqlstore/transaction_sql.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentor-points/internal/domain"
	"mentor-points/internal/repository"
	"mentor-points/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, account_id, owner, delta, reason, reference_id, description, transaction_date,
	expires_at, reversed, reversal_of, reversal_reason, reversed_at`

// TransactionRepository implements repository.TransactionRepository on SQL.
type TransactionRepository struct {
	dialect Dialect
}

// NewTransactionRepository creates a new TransactionRepository for the given dialect.
func NewTransactionRepository(dialect Dialect) repository.TransactionRepository {
	return &TransactionRepository{dialect: dialect}
}

// CreateTransaction inserts a new transaction record using the provided DBExecutor.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	query := q.Rebind(`INSERT INTO point_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		transaction.ID,
		transaction.AccountID,
		transaction.Owner,
		transaction.Delta,
		transaction.Reason,
		transaction.ReferenceID,
		transaction.Description,
		transaction.TransactionDate,
		transaction.ExpiresAt,
		transaction.Reversed,
		transaction.ReversalOf,
		transaction.ReversalReason,
		transaction.ReversedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransactionByID retrieves a single transaction.
func (r *TransactionRepository) GetTransactionByID(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	return r.getTransaction(ctx, q, id, "")
}

// GetTransactionForUpdate retrieves a single transaction holding a row lock.
func (r *TransactionRepository) GetTransactionForUpdate(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	return r.getTransaction(ctx, q, id, r.dialect.forUpdate)
}

func (r *TransactionRepository) getTransaction(ctx context.Context, q repository.DBExecutor, id uuid.UUID, suffix string) (*domain.Transaction, error) {
	var transaction domain.Transaction
	query := q.Rebind(`SELECT ` + transactionColumns + ` FROM point_transactions WHERE id = ?` + suffix)
	if err := q.GetContext(ctx, &transaction, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return &transaction, nil
}

// MarkReversed sets the reversal fields once. The reversed = FALSE guard makes
// a second concurrent reversal affect zero rows.
func (r *TransactionRepository) MarkReversed(ctx context.Context, q repository.DBExecutor, id uuid.UUID, reason string, at time.Time) error {
	query := q.Rebind(`UPDATE point_transactions
		SET reversed = TRUE, reversal_reason = ?, reversed_at = ?
		WHERE id = ? AND reversed = FALSE`)
	result, err := q.ExecContext(ctx, query, reason, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s reversed: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after reversing transaction %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return util.ErrAlreadyReversed
	}
	return nil
}

// GetTransactionsByOwner retrieves a paginated, optionally date-bounded list of
// the owner's transactions. It performs two queries: one for the page and one
// for the total count.
func (r *TransactionRepository) GetTransactionsByOwner(ctx context.Context, q repository.DBExecutor, owner string, filter repository.HistoryFilter) ([]domain.Transaction, int64, error) {
	where := []string{"owner = ?"}
	args := []interface{}{owner}
	if !filter.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "transaction_date < ?")
		args = append(args, filter.To.UTC())
	}
	clause := strings.Join(where, " AND ")

	transactions := []domain.Transaction{}
	query := q.Rebind(`SELECT ` + transactionColumns + ` FROM point_transactions
		WHERE ` + clause + `
		ORDER BY transaction_date DESC, id DESC
		LIMIT ? OFFSET ?`)
	pageArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	if err := q.SelectContext(ctx, &transactions, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions for owner %q: %w", owner, err)
	}

	var totalCount int64
	countQuery := q.Rebind(`SELECT COUNT(*) FROM point_transactions WHERE ` + clause)
	if err := q.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total transaction count for owner %q: %w", owner, err)
	}

	return transactions, totalCount, nil
}

// GetDeltasByOwner returns every delta ever booked for owner.
func (r *TransactionRepository) GetDeltasByOwner(ctx context.Context, q repository.DBExecutor, owner string) ([]decimal.Decimal, error) {
	deltas := []decimal.Decimal{}
	query := q.Rebind(`SELECT delta FROM point_transactions WHERE owner = ?`)
	if err := q.SelectContext(ctx, &deltas, query, owner); err != nil {
		return nil, fmt.Errorf("failed to fetch deltas for owner %q: %w", owner, err)
	}
	return deltas, nil
}

// GetPeriodDeltas returns the deltas of live, original transactions dated in [start, end).
func (r *TransactionRepository) GetPeriodDeltas(ctx context.Context, q repository.DBExecutor, owner string, start, end time.Time) ([]decimal.Decimal, error) {
	deltas := []decimal.Decimal{}
	query := q.Rebind(`SELECT delta FROM point_transactions
		WHERE owner = ? AND reversed = FALSE AND reversal_of IS NULL
		  AND transaction_date >= ? AND transaction_date < ?`)
	if err := q.SelectContext(ctx, &deltas, query, owner, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("failed to fetch period deltas for owner %q: %w", owner, err)
	}
	return deltas, nil
}

// GetExpiredCandidates pages through expired, unreversed original transactions
// in (expires_at, id) order.
func (r *TransactionRepository) GetExpiredCandidates(ctx context.Context, q repository.DBExecutor, now time.Time, after *repository.ExpiryCursor, limit int) ([]domain.Transaction, error) {
	where := `reversed = FALSE AND reversal_of IS NULL AND expires_at IS NOT NULL AND expires_at <= ?`
	args := []interface{}{now.UTC()}
	if after != nil {
		where += ` AND (expires_at, id) > (?, ?)`
		args = append(args, after.ExpiresAt.UTC(), after.ID)
	}
	args = append(args, limit)

	candidates := []domain.Transaction{}
	query := q.Rebind(`SELECT ` + transactionColumns + ` FROM point_transactions
		WHERE ` + where + `
		ORDER BY expires_at, id
		LIMIT ?`)
	if err := q.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch expired transactions: %w", err)
	}
	return candidates, nil
}
