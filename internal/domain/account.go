// internal/domain/account.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds the points balance of a single owner.
type Account struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Owner          string          `db:"owner" json:"owner"`                     // Unique, external user identity
	Balance        decimal.Decimal `db:"balance" json:"balance"`                 // Spendable points, NUMERIC(20, 4) in DB
	LifetimeEarned decimal.Decimal `db:"lifetime_earned" json:"lifetime_earned"` // Gross credits, never decreases
	LifetimeSpent  decimal.Decimal `db:"lifetime_spent" json:"lifetime_spent"`   // Gross debits, never decreases
	LastActivityAt *time.Time      `db:"last_activity_at" json:"last_activity_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// NewAccount creates a zero-balance Account for owner.
func NewAccount(owner string, now time.Time) *Account {
	return &Account{
		ID:             uuid.New(),
		Owner:          owner,
		Balance:        decimal.Zero,
		LifetimeEarned: decimal.Zero,
		LifetimeSpent:  decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// BalanceAfter returns the balance that applying delta would produce.
func (a *Account) BalanceAfter(delta decimal.Decimal) decimal.Decimal {
	return a.Balance.Add(delta)
}

// Apply books delta against the account. Credits grow LifetimeEarned and
// debits grow LifetimeSpent, so both counters only ever increase.
func (a *Account) Apply(delta decimal.Decimal, now time.Time) {
	a.Balance = a.Balance.Add(delta)
	if delta.IsPositive() {
		a.LifetimeEarned = a.LifetimeEarned.Add(delta)
	} else {
		a.LifetimeSpent = a.LifetimeSpent.Add(delta.Neg())
	}
	a.LastActivityAt = &now
	a.UpdatedAt = now
}
