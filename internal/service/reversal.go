// internal/service/reversal.go
package service

import (
	"context"
	"fmt"
	"strings"

	"mentor-points/internal/domain"
	"mentor-points/internal/metrics"
	"mentor-points/internal/repository"
	"mentor-points/internal/util"

	"github.com/google/uuid"
)

// Reverse cancels a transaction by booking its equal-and-opposite entry and
// marking the original reversed. A transaction can be reversed once, and
// reversal entries themselves cannot be reversed.
func (s *ledgerService) Reverse(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.Transaction, error) {
	reversal, err := s.reverse(ctx, transactionID, reason)
	metrics.Reversals.WithLabelValues(reversalOutcome(err)).Inc()
	return reversal, err
}

func (s *ledgerService) reverse(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("reverse: reason is required: %w", util.ErrInvalidInput)
	}

	// The owner is only known from the row, so read it before taking the lock.
	original, err := s.transactionRepo.GetTransactionByID(ctx, s.dbExecutor, transactionID)
	if err != nil {
		return nil, fmt.Errorf("reverse: failed to get transaction %s: %w", transactionID, err)
	}
	if err := checkReversible(original); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Acquire(ctx, original.Owner)
	if err != nil {
		return nil, fmt.Errorf("reverse: failed to lock account %q: %w", original.Owner, err)
	}
	defer unlock()

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("reverse: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("reverse: transaction controller does not implement DBExecutor")
	}

	original, err = s.transactionRepo.GetTransactionForUpdate(ctx, txExecutor, transactionID)
	if err != nil {
		return nil, fmt.Errorf("reverse: failed to lock transaction %s: %w", transactionID, err)
	}
	if err := checkReversible(original); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetAccountForUpdate(ctx, txExecutor, original.Owner)
	if err != nil {
		return nil, fmt.Errorf("reverse: failed to lock account row %q: %w", original.Owner, err)
	}

	delta := original.Delta.Neg()
	if !s.policy.AllowNegativeBalance && account.BalanceAfter(delta).IsNegative() {
		return nil, util.ErrInsufficientBalance
	}

	now := s.now().UTC()
	reversal := domain.NewReversal(original, reason, now)
	if err := s.transactionRepo.CreateTransaction(ctx, txExecutor, reversal); err != nil {
		return nil, fmt.Errorf("reverse: failed to create reversal transaction: %w", err)
	}
	if err := s.transactionRepo.MarkReversed(ctx, txExecutor, original.ID, reason, now); err != nil {
		return nil, fmt.Errorf("reverse: failed to mark transaction %s reversed: %w", original.ID, err)
	}

	account.Apply(delta, now)
	if err := s.accountRepo.UpdateAccountTotals(ctx, txExecutor, account); err != nil {
		return nil, fmt.Errorf("reverse: failed to update account balance: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("reverse: failed to commit transaction: %w", err)
	}

	s.logger.Info("Transaction reversed",
		"transaction_id", original.ID,
		"reversal_id", reversal.ID,
		"owner", original.Owner,
		"reason", reason,
	)
	s.publish(ctx, reversal, account.Balance)
	return reversal, nil
}

func checkReversible(t *domain.Transaction) error {
	if t.IsReversal() {
		return util.ErrReversalNotAllowed
	}
	if t.Reversed {
		return util.ErrAlreadyReversed
	}
	return nil
}

func reversalOutcome(err error) string {
	switch {
	case err == nil:
		return "reversed"
	case util.IsError(err, util.ErrAlreadyReversed):
		return "already_reversed"
	case util.IsError(err, util.ErrTransactionNotFound):
		return "not_found"
	case util.IsError(err, util.ErrReversalNotAllowed):
		return "not_allowed"
	case util.IsError(err, util.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "error"
	}
}
