// internal/service/ledger_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mentor-points/internal/domain"
	"mentor-points/internal/events"
	"mentor-points/internal/lock"
	"mentor-points/internal/metrics"
	"mentor-points/internal/repository"
	"mentor-points/internal/util"
	"mentor-points/pkg/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// LedgerService defines the points ledger operations.
type LedgerService interface {
	Award(ctx context.Context, owner string, amount decimal.Decimal, reason domain.ReasonCode, opts ...domain.EntryOption) (*domain.Account, *domain.Transaction, error)
	Deduct(ctx context.Context, owner string, amount decimal.Decimal, reason domain.ReasonCode, opts ...domain.EntryOption) (*domain.Account, *domain.Transaction, error)
	Reverse(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.Transaction, error)
	GetBalance(ctx context.Context, owner string) (decimal.Decimal, error)
	GetAccount(ctx context.Context, owner string) (*domain.Account, error)
	GetHistory(ctx context.Context, owner string, filter repository.HistoryFilter) ([]domain.Transaction, int64, error)
	GetEarnedInPeriod(ctx context.Context, owner string, start, end time.Time) (decimal.Decimal, error)
	GetSpentInPeriod(ctx context.Context, owner string, start, end time.Time) (decimal.Decimal, error)
	Reconcile(ctx context.Context, owner string) (*Reconciliation, error)
}

// Reconciliation compares an account's stored balance with the sum of its log.
type Reconciliation struct {
	Owner            string          `json:"owner"`
	StoredBalance    decimal.Decimal `json:"stored_balance"`
	ComputedBalance  decimal.Decimal `json:"computed_balance"`
	Difference       decimal.Decimal `json:"difference"`
	TransactionCount int             `json:"transaction_count"`
	Consistent       bool            `json:"consistent"`
}

// ledgerService implements the LedgerService interface.
type ledgerService struct {
	dbBeginner      db.DBTxBeginner       // For starting transactions (e.g., *sqlx.DB)
	dbExecutor      repository.DBExecutor // For non-transactional reads (e.g., *sqlx.DB)
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	locker          lock.Locker
	beginTx         db.BeginTxFunc
	commitTx        db.CommitTxFunc
	rollbackTx      db.RollbackTxFunc

	policy    Policy
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewLedgerService creates a new instance of LedgerService.
func NewLedgerService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	accountRepo repository.AccountRepository,
	transactionRepo repository.TransactionRepository,
	locker lock.Locker,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	opts ...Option,
) LedgerService {
	s := &ledgerService{
		dbBeginner:      dbBeginner,
		dbExecutor:      dbExecutor,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		locker:          locker,
		beginTx:         beginTx,
		commitTx:        commitTx,
		rollbackTx:      rollbackTx,
		publisher:       events.NoopPublisher{},
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Award credits amount to owner's account, creating the account on first use.
func (s *ledgerService) Award(ctx context.Context, owner string, amount decimal.Decimal, reason domain.ReasonCode, opts ...domain.EntryOption) (*domain.Account, *domain.Transaction, error) {
	if err := s.validateEntry("award", owner, amount, reason); err != nil {
		return nil, nil, err
	}
	return s.book(ctx, "award", owner, amount, reason, opts)
}

// Deduct debits amount from owner's account. Unless the policy allows it, the
// balance may not drop below zero.
func (s *ledgerService) Deduct(ctx context.Context, owner string, amount decimal.Decimal, reason domain.ReasonCode, opts ...domain.EntryOption) (*domain.Account, *domain.Transaction, error) {
	if err := s.validateEntry("deduct", owner, amount, reason); err != nil {
		return nil, nil, err
	}
	return s.book(ctx, "deduct", owner, amount.Neg(), reason, opts)
}

func (s *ledgerService) validateEntry(op, owner string, amount decimal.Decimal, reason domain.ReasonCode) error {
	switch {
	case strings.TrimSpace(owner) == "":
		metrics.Rejections.WithLabelValues(op, "invalid_input").Inc()
		return fmt.Errorf("%s: owner is required: %w", op, util.ErrInvalidInput)
	case !domain.ValidAmount(amount):
		metrics.Rejections.WithLabelValues(op, "invalid_amount").Inc()
		return util.ErrInvalidAmount
	case !reason.Valid():
		metrics.Rejections.WithLabelValues(op, "invalid_reason").Inc()
		return fmt.Errorf("%s: %q: %w", op, reason, util.ErrInvalidReason)
	}
	return nil
}

// book appends one transaction for delta and applies it to the account, both
// inside a single database transaction under the owner's lock.
func (s *ledgerService) book(ctx context.Context, op, owner string, delta decimal.Decimal, reason domain.ReasonCode, opts []domain.EntryOption) (*domain.Account, *domain.Transaction, error) {
	unlock, err := s.locker.Acquire(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to lock account %q: %w", op, owner, err)
	}
	defer unlock()

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, nil, fmt.Errorf("%s: transaction controller does not implement DBExecutor", op)
	}

	if _, err := s.accountRepo.EnsureAccount(ctx, txExecutor, owner); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to ensure account %q: %w", op, owner, err)
	}
	account, err := s.accountRepo.GetAccountForUpdate(ctx, txExecutor, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to lock account row %q: %w", op, owner, err)
	}

	if !s.policy.AllowNegativeBalance && account.BalanceAfter(delta).IsNegative() {
		metrics.Rejections.WithLabelValues(op, "insufficient_balance").Inc()
		return nil, nil, util.ErrInsufficientBalance
	}

	now := s.now().UTC()
	transaction := domain.NewTransaction(account, delta, reason, now, opts...)
	if err := s.transactionRepo.CreateTransaction(ctx, txExecutor, transaction); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to create transaction: %w", op, err)
	}

	account.Apply(delta, now)
	if err := s.accountRepo.UpdateAccountTotals(ctx, txExecutor, account); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to update account balance: %w", op, err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	metrics.TransactionsRecorded.WithLabelValues(string(reason), metrics.Direction(delta.IsPositive())).Inc()
	s.publish(ctx, transaction, account.Balance)
	return account, transaction, nil
}

// publish runs after commit. A broker failure never undoes a committed entry.
func (s *ledgerService) publish(ctx context.Context, transaction *domain.Transaction, balance decimal.Decimal) {
	event := events.NewLedgerEvent(transaction, balance)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("Failed to publish ledger event",
			"type", event.Type,
			"transaction_id", transaction.ID,
			"owner", transaction.Owner,
			"error", err,
		)
	}
}

// GetBalance returns the owner's balance, or zero for an owner with no account.
func (s *ledgerService) GetBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	account, err := s.accountRepo.GetAccountByOwner(ctx, s.dbExecutor, owner)
	if err != nil {
		if util.IsError(err, util.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get balance: failed to get account %q: %w", owner, err)
	}
	return account.Balance, nil
}

func (s *ledgerService) GetAccount(ctx context.Context, owner string) (*domain.Account, error) {
	account, err := s.accountRepo.GetAccountByOwner(ctx, s.dbExecutor, owner)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetHistory retrieves a page of the owner's transactions, newest first.
// An owner without an account has an empty history.
func (s *ledgerService) GetHistory(ctx context.Context, owner string, filter repository.HistoryFilter) ([]domain.Transaction, int64, error) {
	if filter.Offset < 0 {
		return nil, 0, fmt.Errorf("get history: negative offset: %w", util.ErrInvalidInput)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, 0, fmt.Errorf("get history: range ends before it starts: %w", util.ErrInvalidInput)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultHistoryLimit
	}
	if filter.Limit > MaxHistoryLimit {
		filter.Limit = MaxHistoryLimit
	}

	transactions, totalCount, err := s.transactionRepo.GetTransactionsByOwner(ctx, s.dbExecutor, owner, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}
	return transactions, totalCount, nil
}

// GetEarnedInPeriod sums the credits dated in [start, end), ignoring reversed
// transactions and reversal entries.
func (s *ledgerService) GetEarnedInPeriod(ctx context.Context, owner string, start, end time.Time) (decimal.Decimal, error) {
	return s.periodTotal(ctx, "get earned", owner, start, end, true)
}

// GetSpentInPeriod sums the debits dated in [start, end) as a positive amount,
// ignoring reversed transactions and reversal entries.
func (s *ledgerService) GetSpentInPeriod(ctx context.Context, owner string, start, end time.Time) (decimal.Decimal, error) {
	return s.periodTotal(ctx, "get spent", owner, start, end, false)
}

func (s *ledgerService) periodTotal(ctx context.Context, op, owner string, start, end time.Time, credits bool) (decimal.Decimal, error) {
	if end.Before(start) {
		return decimal.Zero, fmt.Errorf("%s: period ends before it starts: %w", op, util.ErrInvalidInput)
	}
	deltas, err := s.transactionRepo.GetPeriodDeltas(ctx, s.dbExecutor, owner, start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	total := decimal.Zero
	for _, d := range deltas {
		if credits && d.IsPositive() {
			total = total.Add(d)
		}
		if !credits && d.IsNegative() {
			total = total.Add(d.Neg())
		}
	}
	return total, nil
}

// Reconcile recomputes the owner's balance from the log and compares it with
// the stored one. It holds the owner's lock so both reads see the same state.
func (s *ledgerService) Reconcile(ctx context.Context, owner string) (*Reconciliation, error) {
	unlock, err := s.locker.Acquire(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("reconcile: failed to lock account %q: %w", owner, err)
	}
	defer unlock()

	account, err := s.accountRepo.GetAccountByOwner(ctx, s.dbExecutor, owner)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	deltas, err := s.transactionRepo.GetDeltasByOwner(ctx, s.dbExecutor, owner)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	computed := decimal.Zero
	for _, d := range deltas {
		computed = computed.Add(d)
	}
	result := &Reconciliation{
		Owner:            owner,
		StoredBalance:    account.Balance,
		ComputedBalance:  computed,
		Difference:       account.Balance.Sub(computed),
		TransactionCount: len(deltas),
		Consistent:       account.Balance.Equal(computed),
	}
	if !result.Consistent {
		s.logger.Error("Ledger balance does not match transaction log",
			"owner", owner,
			"stored", account.Balance.String(),
			"computed", computed.String(),
		)
	}
	return result, nil
}
