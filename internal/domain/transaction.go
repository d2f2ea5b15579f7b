// internal/domain/transaction.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits the store keeps for every
// amount (NUMERIC(20, 4) on Postgres).
const AmountScale = 4

// ValidAmount reports whether amount is positive and fits AmountScale.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(AmountScale))
}

// ReasonCode is the closed set of reasons a transaction may carry.
type ReasonCode string

const (
	ReasonDailyLogin          ReasonCode = "daily_login"
	ReasonAchievementUnlocked ReasonCode = "achievement_unlocked"
	ReasonReferralSignup      ReasonCode = "referral_signup"
	ReasonReferralBonus       ReasonCode = "referral_bonus"
	ReasonWeeklyStreak        ReasonCode = "weekly_streak"
	ReasonManualAdminAward    ReasonCode = "manual_admin_award"
	ReasonManualAdminDeduct   ReasonCode = "manual_admin_deduct"
	ReasonRewardRedemption    ReasonCode = "reward_redemption"
	ReasonReversal            ReasonCode = "reversal"
	ReasonExpiredReversal     ReasonCode = "expired_reversal"
)

// ReversalReasonExpired is the reversal reason recorded by the expiration sweep.
const ReversalReasonExpired = "expired"

var callerReasons = map[ReasonCode]struct{}{
	ReasonDailyLogin:          {},
	ReasonAchievementUnlocked: {},
	ReasonReferralSignup:      {},
	ReasonReferralBonus:       {},
	ReasonWeeklyStreak:        {},
	ReasonManualAdminAward:    {},
	ReasonManualAdminDeduct:   {},
	ReasonRewardRedemption:    {},
}

// Valid reports whether r may be supplied by a caller on award or deduct.
// The reversal codes are reserved for the reversal engine.
func (r ReasonCode) Valid() bool {
	_, ok := callerReasons[r]
	return ok
}

// ReversalCode picks the reason code written on a reversal transaction.
func ReversalCode(reversalReason string) ReasonCode {
	if reversalReason == ReversalReasonExpired {
		return ReasonExpiredReversal
	}
	return ReasonReversal
}

// Transaction is one immutable entry in the points log. Only the reversal
// fields change after insert, and only once.
type Transaction struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AccountID       uuid.UUID       `db:"account_id" json:"account_id"`
	Owner           string          `db:"owner" json:"owner"`
	Delta           decimal.Decimal `db:"delta" json:"delta"` // Positive for credits, negative for debits
	Reason          ReasonCode      `db:"reason" json:"reason"`
	ReferenceID     *string         `db:"reference_id" json:"reference_id,omitempty"`
	Description     *string         `db:"description" json:"description,omitempty"`
	TransactionDate time.Time       `db:"transaction_date" json:"transaction_date"`
	ExpiresAt       *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	Reversed        bool            `db:"reversed" json:"reversed"`
	ReversalOf      *uuid.UUID      `db:"reversal_of" json:"reversal_of,omitempty"`
	ReversalReason  *string         `db:"reversal_reason" json:"reversal_reason,omitempty"`
	ReversedAt      *time.Time      `db:"reversed_at" json:"reversed_at,omitempty"`
}

// EntryOptions carries the optional fields of an award or deduct.
type EntryOptions struct {
	ReferenceID *string
	Description *string
	ExpiresAt   *time.Time
}

// EntryOption sets an optional field on a new transaction.
type EntryOption func(*EntryOptions)

// WithReference correlates the transaction with the caller's own entity.
func WithReference(id string) EntryOption {
	return func(o *EntryOptions) { o.ReferenceID = &id }
}

// WithDescription attaches free text to the transaction.
func WithDescription(text string) EntryOption {
	return func(o *EntryOptions) { o.Description = &text }
}

// WithExpiry makes the transaction a candidate for the expiration sweep at t.
func WithExpiry(t time.Time) EntryOption {
	return func(o *EntryOptions) {
		utc := t.UTC()
		o.ExpiresAt = &utc
	}
}

// NewTransaction creates a transaction booking delta against account.
func NewTransaction(account *Account, delta decimal.Decimal, reason ReasonCode, now time.Time, opts ...EntryOption) *Transaction {
	var o EntryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Transaction{
		ID:              uuid.New(),
		AccountID:       account.ID,
		Owner:           account.Owner,
		Delta:           delta,
		Reason:          reason,
		ReferenceID:     o.ReferenceID,
		Description:     o.Description,
		TransactionDate: now,
		ExpiresAt:       o.ExpiresAt,
	}
}

// NewReversal creates the equal-and-opposite entry cancelling original.
func NewReversal(original *Transaction, reversalReason string, now time.Time) *Transaction {
	originalID := original.ID
	reason := reversalReason
	return &Transaction{
		ID:              uuid.New(),
		AccountID:       original.AccountID,
		Owner:           original.Owner,
		Delta:           original.Delta.Neg(),
		Reason:          ReversalCode(reversalReason),
		ReferenceID:     original.ReferenceID,
		Description:     &reason,
		TransactionDate: now,
		ReversalOf:      &originalID,
	}
}

// IsReversal reports whether t cancels another transaction.
func (t *Transaction) IsReversal() bool {
	return t.ReversalOf != nil
}

// IsCredit reports whether t increases the balance.
func (t *Transaction) IsCredit() bool {
	return t.Delta.IsPositive()
}

// Expired reports whether t has an expiry at or before now.
func (t *Transaction) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}
