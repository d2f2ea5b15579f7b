// internal/service/sweep.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mentor-points/internal/domain"
	"mentor-points/internal/metrics"
	"mentor-points/internal/repository"
	"mentor-points/internal/util"

	"github.com/google/uuid"
)

const (
	DefaultSweepBatchSize = 100
	sweepTimeout          = 5 * time.Minute
)

// Reverser is the part of LedgerService the sweep depends on.
type Reverser interface {
	Reverse(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.Transaction, error)
}

// ExpirationSweeper reverses transactions whose expiry has passed. Every
// reversal goes through Reverser, the same path as a manual reversal.
type ExpirationSweeper struct {
	reverser        Reverser
	dbExecutor      repository.DBExecutor
	transactionRepo repository.TransactionRepository
	batchSize       int
	logger          *slog.Logger
}

// NewExpirationSweeper creates a sweeper. batchSize <= 0 uses DefaultSweepBatchSize.
func NewExpirationSweeper(
	reverser Reverser,
	dbExecutor repository.DBExecutor,
	transactionRepo repository.TransactionRepository,
	batchSize int,
	logger *slog.Logger,
) *ExpirationSweeper {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirationSweeper{
		reverser:        reverser,
		dbExecutor:      dbExecutor,
		transactionRepo: transactionRepo,
		batchSize:       batchSize,
		logger:          logger,
	}
}

// ProcessExpired reverses every unreversed transaction with expires_at <= now
// and returns how many it reversed. A candidate that fails is logged and
// skipped; the keyset cursor moves past it so one run visits each candidate once.
func (s *ExpirationSweeper) ProcessExpired(ctx context.Context, now time.Time) (int, error) {
	var cursor *repository.ExpiryCursor
	processed, failed := 0, 0

	for {
		candidates, err := s.transactionRepo.GetExpiredCandidates(ctx, s.dbExecutor, now, cursor, s.batchSize)
		if err != nil {
			err = fmt.Errorf("process expired: failed to fetch candidates: %w", err)
			s.abort(processed, failed, err)
			return processed, err
		}

		for i := range candidates {
			if err := ctx.Err(); err != nil {
				s.abort(processed, failed, err)
				return processed, err
			}
			candidate := &candidates[i]

			_, err := s.reverser.Reverse(ctx, candidate.ID, domain.ReversalReasonExpired)
			switch {
			case err == nil:
				processed++
				metrics.SweepReversed.Inc()
			case util.IsError(err, util.ErrAlreadyReversed):
				s.logger.Debug("Expired transaction already reversed", "transaction_id", candidate.ID)
			default:
				failed++
				metrics.SweepFailed.Inc()
				s.logger.Warn("Failed to reverse expired transaction",
					"transaction_id", candidate.ID,
					"owner", candidate.Owner,
					"error", err,
				)
			}
		}

		if len(candidates) < s.batchSize {
			break
		}
		last := candidates[len(candidates)-1]
		cursor = &repository.ExpiryCursor{ExpiresAt: *last.ExpiresAt, ID: last.ID}
	}

	metrics.SweepRuns.WithLabelValues("completed").Inc()
	s.logger.Info("Expiration sweep completed", "reversed", processed, "failed", failed)
	return processed, nil
}

func (s *ExpirationSweeper) abort(processed, failed int, err error) {
	metrics.SweepRuns.WithLabelValues("aborted").Inc()
	s.logger.Warn("Expiration sweep aborted", "reversed", processed, "failed", failed, "error", err)
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *ExpirationSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping expiration sweeper")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ExpirationSweeper) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if _, err := s.ProcessExpired(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("Expiration sweep failed", "error", err)
	}
}
