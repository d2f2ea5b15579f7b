// internal/service/options.go
package service

import (
	"log/slog"
	"time"

	"mentor-points/internal/events"
)

// Policy holds the ledger's configurable business rules.
type Policy struct {
	// AllowNegativeBalance lets Deduct and Reverse take a balance below zero.
	AllowNegativeBalance bool
}

// Option configures a ledger service.
type Option func(*ledgerService)

// WithPolicy overrides the default Policy (negative balances disallowed).
func WithPolicy(p Policy) Option {
	return func(s *ledgerService) { s.policy = p }
}

// WithPublisher sends committed changes to p. The default drops them.
func WithPublisher(p events.Publisher) Option {
	return func(s *ledgerService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ledgerService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *ledgerService) {
		if l != nil {
			s.logger = l
		}
	}
}
