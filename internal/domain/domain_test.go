// internal/domain/domain_test.go
package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonCodeValid(t *testing.T) {
	assert.True(t, ReasonDailyLogin.Valid())
	assert.True(t, ReasonRewardRedemption.Valid())
	assert.False(t, ReasonReversal.Valid(), "reversal codes are reserved")
	assert.False(t, ReasonExpiredReversal.Valid(), "reversal codes are reserved")
	assert.False(t, ReasonCode("bogus").Valid())
}

func TestAccountApply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	acct := NewAccount("u1", now)

	acct.Apply(decimal.NewFromInt(50), now)
	acct.Apply(decimal.NewFromInt(-20), now)

	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(30)))
	assert.True(t, acct.LifetimeEarned.Equal(decimal.NewFromInt(50)))
	assert.True(t, acct.LifetimeSpent.Equal(decimal.NewFromInt(20)))
	require.NotNil(t, acct.LastActivityAt)
	assert.Equal(t, now, *acct.LastActivityAt)
	assert.True(t, acct.BalanceAfter(decimal.NewFromInt(-40)).IsNegative())
}

func TestNewTransactionOptions(t *testing.T) {
	now := time.Now().UTC()
	expiry := now.Add(time.Hour)
	acct := NewAccount("u1", now)

	tx := NewTransaction(acct, decimal.NewFromInt(10), ReasonAchievementUnlocked, now,
		WithReference("ach-42"), WithDescription("first mentor session"), WithExpiry(expiry))

	assert.Equal(t, acct.ID, tx.AccountID)
	assert.Equal(t, "u1", tx.Owner)
	require.NotNil(t, tx.ReferenceID)
	assert.Equal(t, "ach-42", *tx.ReferenceID)
	require.NotNil(t, tx.Description)
	assert.Equal(t, "first mentor session", *tx.Description)
	require.NotNil(t, tx.ExpiresAt)
	assert.True(t, tx.ExpiresAt.Equal(expiry))
	assert.True(t, tx.IsCredit())
	assert.False(t, tx.IsReversal())
	assert.False(t, tx.Expired(now))
	assert.True(t, tx.Expired(expiry))
}

func TestNewReversal(t *testing.T) {
	now := time.Now().UTC()
	acct := NewAccount("u1", now)
	original := NewTransaction(acct, decimal.NewFromInt(100), ReasonWeeklyStreak, now)

	t.Run("Manual", func(t *testing.T) {
		rev := NewReversal(original, "admin correction", now)
		assert.True(t, rev.Delta.Equal(decimal.NewFromInt(-100)))
		assert.Equal(t, ReasonReversal, rev.Reason)
		require.NotNil(t, rev.ReversalOf)
		assert.Equal(t, original.ID, *rev.ReversalOf)
		assert.True(t, rev.IsReversal())
		assert.NotEqual(t, original.ID, rev.ID)
	})

	t.Run("Expired", func(t *testing.T) {
		rev := NewReversal(original, ReversalReasonExpired, now)
		assert.Equal(t, ReasonExpiredReversal, rev.Reason)
		assert.Nil(t, rev.ExpiresAt)
	})
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		amount string
		want   bool
	}{
		{"1", true},
		{"0.0001", true},
		{"1.50000", true},
		{"0", false},
		{"-3", false},
		{"0.00005", false},
		{"12.34567", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidAmount(decimal.RequireFromString(tt.amount)))
		})
	}
}
