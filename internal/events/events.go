// internal/events/events.go
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mentor-points/internal/domain"
)

// Event types, also used as AMQP routing keys.
const (
	TypeAwarded  = "points.awarded"
	TypeDeducted = "points.deducted"
	TypeReversed = "points.reversed"
)

// LedgerEvent is emitted after a balance-changing commit.
type LedgerEvent struct {
	Type          string            `json:"type"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	Owner         string            `json:"owner"`
	Delta         decimal.Decimal   `json:"delta"`
	Reason        domain.ReasonCode `json:"reason"`
	Balance       decimal.Decimal   `json:"balance"`
	ReversalOf    *uuid.UUID        `json:"reversal_of,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewLedgerEvent builds the event for a committed transaction and the
// account balance it left behind.
func NewLedgerEvent(tx *domain.Transaction, balance decimal.Decimal) LedgerEvent {
	eventType := TypeAwarded
	switch {
	case tx.IsReversal():
		eventType = TypeReversed
	case !tx.IsCredit():
		eventType = TypeDeducted
	}
	return LedgerEvent{
		Type:          eventType,
		TransactionID: tx.ID,
		Owner:         tx.Owner,
		Delta:         tx.Delta,
		Reason:        tx.Reason,
		Balance:       balance,
		ReversalOf:    tx.ReversalOf,
		OccurredAt:    tx.TransactionDate,
	}
}

// Publisher delivers ledger events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, LedgerEvent) error { return nil }
func (NoopPublisher) Close() error                               { return nil }
